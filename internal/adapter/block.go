package adapter

import (
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Block tags understood by every adapter
const (
	BlockLatest    = "latest"
	BlockPending   = "pending"
	BlockEarliest  = "earliest"
	BlockSafe      = "safe"
	BlockFinalized = "finalized"
)

// knownBlockTags maps each tag to whether it always names the same block.
// Earliest is the genesis block; the others move with the chain head.
var knownBlockTags = map[string]bool{
	BlockLatest:    false,
	BlockPending:   false,
	BlockEarliest:  true,
	BlockSafe:      false,
	BlockFinalized: false,
}

func canonicalTag(tag string) string {
	return strings.ToLower(strings.TrimSpace(tag))
}

// BlockSpecifier identifies a block by tag, number or hash.
// A nil *BlockSpecifier means latest.
type BlockSpecifier struct {
	Tag    string       `json:"tag,omitempty"`
	Number *uint64      `json:"number,omitempty"`
	Hash   *common.Hash `json:"hash,omitempty"`
}

// AtNumber returns a specifier for a block number
func AtNumber(n uint64) *BlockSpecifier {
	return &BlockSpecifier{Number: &n}
}

// AtHash returns a specifier for a block hash
func AtHash(h common.Hash) *BlockSpecifier {
	return &BlockSpecifier{Hash: &h}
}

// AtTag returns a specifier for a block tag such as "latest" or "safe"
func AtTag(tag string) *BlockSpecifier {
	return &BlockSpecifier{Tag: canonicalTag(tag)}
}

// IsStable returns true when the specifier always resolves to the same block:
// a number, a hash or the earliest tag. Unknown tags are not stable.
func (b *BlockSpecifier) IsStable() bool {
	if b == nil {
		return false
	}
	if b.Hash != nil || b.Number != nil {
		return true
	}
	return knownBlockTags[canonicalTag(b.Tag)]
}

// Normalize collapses the equivalent spellings of "latest" to nil and
// lowercases tags, so that equal specifiers derive the same cache key
func (b *BlockSpecifier) Normalize() *BlockSpecifier {
	if b == nil {
		return nil
	}
	tag := canonicalTag(b.Tag)
	if b.Hash == nil && b.Number == nil && (tag == "" || tag == BlockLatest) {
		return nil
	}
	if tag == b.Tag {
		return b
	}
	out := *b
	out.Tag = tag
	return &out
}

// String returns a human readable form
func (b *BlockSpecifier) String() string {
	switch {
	case b == nil:
		return BlockLatest
	case b.Hash != nil:
		return b.Hash.Hex()
	case b.Number != nil:
		return strconv.FormatUint(*b.Number, 10)
	case b.Tag != "":
		return b.Tag
	default:
		return BlockLatest
	}
}
