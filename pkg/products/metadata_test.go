package products

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/productledger/pkg/contentstore"
)

func TestCIDList_UnmarshalJSON(t *testing.T) {
	cases := []struct {
		in   string
		want CIDList
	}{
		{`null`, CIDList{}},
		{`""`, CIDList{}},
		{`[]`, CIDList{}},
		{`"sha256:aa"`, CIDList{"sha256:aa"}},
		{`["sha256:aa"," sha256:bb ",""]`, CIDList{"sha256:aa", "sha256:bb"}},
	}
	for _, tc := range cases {
		var got CIDList
		require.NoError(t, json.Unmarshal([]byte(tc.in), &got), tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}

	var bad CIDList
	assert.Error(t, json.Unmarshal([]byte(`{"a":1}`), &bad))
}

func TestCIDList_InStruct(t *testing.T) {
	var m ProductMetadata
	require.NoError(t, json.Unmarshal([]byte(`{"id":1,"name":"Shoe","imageCids":"sha256:aa","fileCids":null}`), &m))
	assert.Equal(t, CIDList{"sha256:aa"}, m.ImageCIDs)
	assert.Equal(t, CIDList{}, m.FileCIDs)

	raw, err := json.Marshal(ProductMetadata{ID: 1})
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"imageCids":[]`)
}

func TestParseCIDList(t *testing.T) {
	assert.Equal(t, CIDList{"a", "b", "c"}, ParseCIDList("a, b", "", "c"))
	assert.Equal(t, CIDList{}, ParseCIDList())
}

func TestSplitAssets(t *testing.T) {
	images, files := splitAssets([]Asset{
		{Filename: "a.PNG", ContentType: "Image/PNG"},
		{Filename: "b.pdf", ContentType: "application/pdf"},
		{Filename: "c.webp", ContentType: "image/webp"},
	})
	require.Len(t, images, 2)
	assert.Equal(t, "a.PNG", images[0].Filename)
	assert.Equal(t, "c.webp", images[1].Filename)
	require.Len(t, files, 1)
	assert.Equal(t, "b.pdf", files[0].Filename)
}

func TestProductMetadata_NormalizeIsCIDStable(t *testing.T) {
	composed := ProductMetadata{ID: 1, Name: "Caf\u00e9", Brand: "Acme"}
	decomposed := ProductMetadata{ID: 1, Name: " Cafe\u0301 ", Brand: "Acme\n"}
	composed.normalize()
	decomposed.normalize()

	assert.Equal(t, composed, decomposed)
	a, err := contentstore.Canonical(composed)
	require.NoError(t, err)
	b, err := contentstore.Canonical(decomposed)
	require.NoError(t, err)
	assert.Equal(t, contentstore.ComputeCID(a), contentstore.ComputeCID(b))
}
