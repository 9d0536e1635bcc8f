package evolution

import "context"

// Client is the read-side surface of the provider API used during ingestion.
// Both calls are best-effort enrichment; callers tolerate errors.
type Client interface {
	FetchProfilePictureURL(ctx context.Context, instance, number string) (string, error)
	FetchMediaBase64(ctx context.Context, instance, messageID string) (*MediaPayload, error)
}

// MediaPayload is the decoded result of a base64 media fetch.
type MediaPayload struct {
	Data     []byte
	MimeType string
	FileName string
}

type profilePictureRequest struct {
	Number string `json:"number"`
}

type profilePictureResponse struct {
	WUID              string `json:"wuid,omitempty"`
	ProfilePictureURL string `json:"profilePictureUrl"`
}

type mediaBase64Request struct {
	Message      mediaBase64Message `json:"message"`
	ConvertToMp4 bool               `json:"convertToMp4"`
}

type mediaBase64Message struct {
	Key mediaBase64Key `json:"key"`
}

type mediaBase64Key struct {
	ID string `json:"id"`
}

type mediaBase64Response struct {
	Base64   string `json:"base64"`
	MimeType string `json:"mimetype"`
	FileName string `json:"fileName,omitempty"`
	Error    string `json:"error,omitempty"`
}
