// Package serialkey derives deterministic, order-independent cache keys from
// structured call parameters and matches partial keys against full ones.
package serialkey
