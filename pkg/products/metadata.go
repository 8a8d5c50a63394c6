package products

import (
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/Mindburn-Labs/productledger/pkg/contentstore"
)

// CIDList is an ordered list of content identifiers. It decodes from null, a
// single string, or an array of strings.
type CIDList []contentstore.CID

func (l *CIDList) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	switch {
	case trimmed == "null":
		*l = CIDList{}
		return nil
	case strings.HasPrefix(trimmed, `"`):
		var one string
		if err := json.Unmarshal(data, &one); err != nil {
			return err
		}
		*l = ParseCIDList(one)
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("cid list: %w", err)
	}
	out := make(CIDList, 0, len(many))
	for _, s := range many {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, contentstore.CID(s))
		}
	}
	*l = out
	return nil
}

func (l CIDList) MarshalJSON() ([]byte, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]contentstore.CID(l))
}

// ParseCIDList reads form values, where several CIDs may share one comma
// separated field.
func ParseCIDList(values ...string) CIDList {
	out := CIDList{}
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, contentstore.CID(part))
			}
		}
	}
	return out
}

// ProductMetadata is the off-chain description of a product. Every edit uploads
// a new object.
type ProductMetadata struct {
	ID          TokenID `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Brand       string  `json:"brand"`
	Category    string  `json:"category"`
	Size        string  `json:"size"`
	Status      string  `json:"status,omitempty"`
	ImageCIDs   CIDList `json:"imageCids"`
	FileCIDs    CIDList `json:"fileCids"`
	Creator     string  `json:"creator,omitempty"`
}

// normalize trims and NFC-normalizes the text fields so that visually equal
// metadata hashes to the same CID.
func (m *ProductMetadata) normalize() {
	for _, f := range []*string{&m.Name, &m.Description, &m.Brand, &m.Category, &m.Size, &m.Status} {
		*f = norm.NFC.String(strings.TrimSpace(*f))
	}
}

// Asset is an uploaded file.
type Asset struct {
	Filename    string
	ContentType string
	Data        []byte
}

func (a Asset) IsImage() bool {
	return strings.HasPrefix(strings.ToLower(a.ContentType), "image/")
}

func splitAssets(assets []Asset) (images, files []Asset) {
	for _, a := range assets {
		if a.IsImage() {
			images = append(images, a)
		} else {
			files = append(files, a)
		}
	}
	return images, files
}
