package pdf

import (
	"bytes"
	"context"
	"io"
)

// CertificateData carries everything the generator needs; rendering never
// reaches back into the database.
type CertificateData struct {
	CertificateNumber string
	RecipientName     string
	EventName         string
	EventDate         string
	VenueName         string
	OrganizerName     string
	Body              string
}

type Provider interface {
	GenerateCertificate(ctx context.Context, data CertificateData) (io.Reader, error)
}

type NoOpProvider struct{}

func (p *NoOpProvider) GenerateCertificate(ctx context.Context, data CertificateData) (io.Reader, error) {
	return bytes.NewReader(nil), nil
}
