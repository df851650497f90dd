package decode

import (
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTagToNameIsExactInverse(t *testing.T) {
	require.Equal(t, len(NameToTag), len(TagToName))
	for name, tag := range NameToTag {
		assert.Equal(t, name, TagToName[tag])
	}
}

func TestNoDuplicateTagValues(t *testing.T) {
	tags := make([]Tag, 0, len(NameToTag))
	for _, tag := range NameToTag {
		tags = append(tags, tag)
	}
	assert.Empty(t, lo.FindDuplicates(tags), "every tag value must be unique")
}

// TestRewriteTagsNested is scenario C: a nested map/sequence rewrite.
func TestRewriteTagsNested(t *testing.T) {
	tree := &Node{
		Kind: NodeMap,
		Entries: []MapEntry{
			{
				KeyTag: TagData,
				Value: &Node{
					Kind: NodeSeq,
					Seq: []*Node{
						{Kind: NodeMap, Entries: []MapEntry{{KeyTag: TagChannelTheta, Value: &Node{Kind: NodeUint, Uint: 42}}}},
						{Kind: NodeMap, Entries: []MapEntry{{KeyTag: TagChannelPhi, Value: &Node{Kind: NodeUint, Uint: 43}}}},
						{Kind: NodeMap, Entries: []MapEntry{{KeyTag: TagDistValues, Value: &Node{Kind: NodeUint, Uint: 44}}}},
					},
				},
			},
		},
	}

	out, err := RewriteTags(tree)
	require.NoError(t, err)

	data := out.Get("data")
	require.NotNil(t, data)
	require.Equal(t, NodeSeq, data.Kind)
	require.Len(t, data.Seq, 3)

	assert.Equal(t, uint64(42), data.Seq[0].Get("channel_theta").Uint)
	assert.Equal(t, uint64(43), data.Seq[1].Get("channel_phi").Uint)
	assert.Equal(t, uint64(44), data.Seq[2].Get("dist_values").Uint)
}

// TestRewriteTagsValue is scenario D: class/endian/elem_types value rewriting.
func TestRewriteTagsValue(t *testing.T) {
	class := &Node{Kind: NodeMap, Entries: []MapEntry{
		{KeyTag: TagClass, Value: &Node{Kind: NodeUint, Uint: uint64(TagScan)}},
	}}
	out, err := RewriteTags(class)
	require.NoError(t, err)
	assert.Equal(t, "scan", out.Get("class").Str)

	endian := &Node{Kind: NodeMap, Entries: []MapEntry{
		{KeyTag: TagEndian, Value: &Node{Kind: NodeUint, Uint: uint64(TagLittle)}},
	}}
	out, err = RewriteTags(endian)
	require.NoError(t, err)
	assert.Equal(t, "little", out.Get("endian").Str)

	elemTypes := &Node{Kind: NodeMap, Entries: []MapEntry{
		{KeyTag: TagElemTypes, Value: &Node{Kind: NodeSeq, Seq: []*Node{
			{Kind: NodeUint, Uint: uint64(TagFloat32)},
			{Kind: NodeUint, Uint: uint64(TagUint32)},
			{Kind: NodeUint, Uint: uint64(TagUint8)},
			{Kind: NodeUint, Uint: uint64(TagUint16)},
			{Kind: NodeUint, Uint: uint64(TagInt16)},
		}}},
	}}
	out, err = RewriteTags(elemTypes)
	require.NoError(t, err)

	names := make([]string, len(out.Get("elem_types").Seq))
	for i, n := range out.Get("elem_types").Seq {
		names[i] = n.Str
	}
	assert.Equal(t, []string{"float32", "uint32", "uint8", "uint16", "int16"}, names)
}

func TestRewriteTagsUnknownTagFails(t *testing.T) {
	tree := &Node{Kind: NodeMap, Entries: []MapEntry{{KeyTag: Tag(0xff), Value: &Node{Kind: NodeNil}}}}
	_, err := RewriteTags(tree)
	assert.Error(t, err)
}

func TestNodeGetOnNonMapReturnsNil(t *testing.T) {
	n := &Node{Kind: NodeSeq}
	assert.Nil(t, n.Get("anything"))
}
