package adapter

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
)

func TestBlockSpecifier_IsStable(t *testing.T) {
	tests := []struct {
		name  string
		block *BlockSpecifier
		want  bool
	}{
		{"nil is latest", nil, false},
		{"latest", AtTag("latest"), false},
		{"upper case tag", AtTag("FINALIZED"), false},
		{"pending", AtTag(BlockPending), false},
		{"literal mixed case latest", &BlockSpecifier{Tag: "Latest"}, false},
		{"literal mixed case safe", &BlockSpecifier{Tag: "Safe"}, false},
		{"unknown tag", &BlockSpecifier{Tag: "soon"}, false},
		{"earliest", AtTag(BlockEarliest), true},
		{"literal upper case earliest", &BlockSpecifier{Tag: "EARLIEST"}, true},
		{"number", AtNumber(100), true},
		{"zero number", AtNumber(0), true},
		{"hash", AtHash(common.HexToHash("0x01")), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.block.IsStable())
		})
	}
}

func TestBlockSpecifier_Normalize(t *testing.T) {
	assert.Nil(t, (*BlockSpecifier)(nil).Normalize())
	assert.Nil(t, AtTag(BlockLatest).Normalize())
	assert.Nil(t, (&BlockSpecifier{}).Normalize())
	assert.Equal(t, AtTag(BlockSafe), AtTag(BlockSafe).Normalize())
	assert.Equal(t, AtNumber(5), AtNumber(5).Normalize())
	assert.Nil(t, (&BlockSpecifier{Tag: "Latest"}).Normalize())
	assert.Nil(t, (&BlockSpecifier{Tag: " LATEST "}).Normalize())
	assert.Equal(t, AtTag(BlockSafe), (&BlockSpecifier{Tag: "Safe"}).Normalize())

	raw := &BlockSpecifier{Tag: "Finalized"}
	raw.Normalize()
	assert.Equal(t, "Finalized", raw.Tag, "Normalize must not modify its receiver")
}

func TestBlockSpecifier_String(t *testing.T) {
	assert.Equal(t, "latest", (*BlockSpecifier)(nil).String())
	assert.Equal(t, "12", AtNumber(12).String())
	assert.Equal(t, "safe", AtTag("safe").String())
}

func TestEventFilter_IsStable(t *testing.T) {
	assert.True(t, EventFilter{FromBlock: AtNumber(1), ToBlock: AtNumber(2)}.IsStable())
	assert.False(t, EventFilter{FromBlock: AtNumber(1)}.IsStable())
}
