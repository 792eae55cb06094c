package blobtier

// WriteContext carries the content of a write and the owner it belongs to.
type WriteContext struct {
	Content []byte
	// DocID identifies the owning document. Required by record keys.
	DocID string
	// FieldPath names the document field the blob is bound to.
	FieldPath string
	MimeType  string
	Filename  string
}

// BlobRef is a persisted reference to stored content.
type BlobRef struct {
	Key      string `json:"key"`
	Length   int64  `json:"length"`
	MimeType string `json:"mime_type,omitempty"`
	Filename string `json:"filename,omitempty"`
}

// NewBlobRef returns a reference to the content written with wc under key.
func NewBlobRef(key string, wc WriteContext) *BlobRef {
	return &BlobRef{
		Key:      key,
		Length:   int64(len(wc.Content)),
		MimeType: wc.MimeType,
		Filename: wc.Filename,
	}
}
