package pdf

import (
	"bytes"
	"context"
	"io"
	"strings"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/consts/orientation"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

type PDFProvider struct{}

func New() Provider {
	return &PDFProvider{}
}

func (p *PDFProvider) GenerateCertificate(ctx context.Context, data CertificateData) (io.Reader, error) {
	cfg := config.NewBuilder().
		WithOrientation(orientation.Horizontal).
		Build()

	m := maroto.New(cfg)

	m.AddRow(30,
		text.NewCol(12, "Certificate of Participation", props.Text{
			Size:  28,
			Style: fontstyle.Bold,
			Align: align.Center,
			Top:   10,
		}),
	)

	m.AddRow(4, line.NewCol(12))

	m.AddRow(16,
		text.NewCol(12, "This certifies that", props.Text{
			Size:  12,
			Align: align.Center,
			Top:   6,
		}),
	)

	m.AddRow(18,
		text.NewCol(12, data.RecipientName, props.Text{
			Size:  22,
			Style: fontstyle.BoldItalic,
			Align: align.Center,
		}),
	)

	for _, paragraph := range bodyLines(data) {
		m.AddRow(10,
			text.NewCol(12, paragraph, props.Text{
				Size:  12,
				Align: align.Center,
			}),
		)
	}

	m.AddRow(20, col.New(12))

	m.AddRow(12,
		col.New(6).Add(
			text.New(data.OrganizerName, props.Text{Size: 10, Style: fontstyle.Bold}),
			text.New("Organizer", props.Text{Size: 8, Top: 5}),
		),
		col.New(6).Add(
			text.New(data.CertificateNumber, props.Text{Size: 10, Align: align.Right}),
			text.New(data.EventDate, props.Text{Size: 8, Top: 5, Align: align.Right}),
		),
	)

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(doc.GetBytes()), nil
}

func bodyLines(data CertificateData) []string {
	if strings.TrimSpace(data.Body) != "" {
		return strings.Split(strings.TrimSpace(data.Body), "\n")
	}
	lines := []string{"participated in " + data.EventName}
	if data.VenueName != "" {
		lines = append(lines, "held at "+data.VenueName)
	}
	if data.EventDate != "" {
		lines = append(lines, "on "+data.EventDate)
	}
	return lines
}
