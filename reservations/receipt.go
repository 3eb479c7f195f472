package reservations

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/phpdave11/gofpdf"
	"github.com/skip2/go-qrcode"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"jimgabang/models"
)

var ErrBadReceipt = errors.New("receipt: invalid payload")

// ReceiptSigner signs the QR payload printed on booking receipts:
// bookingID|serviceID|creator|issuedAt|signature.
type ReceiptSigner struct {
	secret []byte
	now    func() time.Time
}

func NewReceiptSigner(secret string) *ReceiptSigner {
	return &ReceiptSigner{secret: []byte(secret), now: time.Now}
}

func (s *ReceiptSigner) sign(data string) string {
	h := hmac.New(sha256.New, s.secret)
	h.Write([]byte(data))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}

// Payload returns the signed QR payload for b.
func (s *ReceiptSigner) Payload(b *models.Booking) string {
	data := fmt.Sprintf("%s|%s|%s|%d", b.ID.Hex(), b.ServiceID.Hex(), b.Creator, s.now().Unix())
	return data + "|" + s.sign(data)
}

// ReceiptClaim is the content of a verified payload.
type ReceiptClaim struct {
	BookingID primitive.ObjectID
	ServiceID primitive.ObjectID
	Creator   string
	IssuedAt  time.Time
}

// Verify checks the signature of payload and returns its content.
func (s *ReceiptSigner) Verify(payload string) (*ReceiptClaim, error) {
	i := strings.LastIndexByte(payload, '|')
	if i < 0 {
		return nil, ErrBadReceipt
	}
	data, sig := payload[:i], payload[i+1:]
	if !hmac.Equal([]byte(sig), []byte(s.sign(data))) {
		return nil, ErrBadReceipt
	}

	// The creator email sits between fixed-format fields and may itself
	// contain a separator.
	head := strings.SplitN(data, "|", 3)
	if len(head) != 3 {
		return nil, ErrBadReceipt
	}
	j := strings.LastIndexByte(head[2], '|')
	if j < 0 {
		return nil, ErrBadReceipt
	}
	creator, stamp := head[2][:j], head[2][j+1:]

	bookingID, err := primitive.ObjectIDFromHex(head[0])
	if err != nil {
		return nil, ErrBadReceipt
	}
	serviceID, err := primitive.ObjectIDFromHex(head[1])
	if err != nil {
		return nil, ErrBadReceipt
	}
	ts, err := strconv.ParseInt(stamp, 10, 64)
	if err != nil {
		return nil, ErrBadReceipt
	}
	return &ReceiptClaim{
		BookingID: bookingID,
		ServiceID: serviceID,
		Creator:   creator,
		IssuedAt:  time.Unix(ts, 0),
	}, nil
}

// RenderReceipt draws a one-page PDF for b with payload as a QR code.
func RenderReceipt(b *models.Booking, s *models.Service, payload string) ([]byte, error) {
	qrPNG, err := qrcode.Encode(payload, qrcode.Medium, 256)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()
	pdf.SetFont("Arial", "B", 16)
	pdf.Cell(40, 10, "Bag Storage Receipt")
	pdf.Ln(12)

	pdf.SetFont("Arial", "", 12)
	lines := []string{
		"Booking: " + b.ID.Hex(),
		"Service: " + tr(s.ServiceName),
		"Address: " + tr(s.Address),
		"Hours: " + tr(s.ServiceTime),
		"Dates: " + strings.Join(b.BookingDate, ", "),
		fmt.Sprintf("Bags: %d", b.BookingBag),
		"Status: " + string(b.Confirm),
		"Client: " + tr(b.Creator),
	}
	for _, l := range lines {
		pdf.Cell(0, 10, l)
		pdf.Ln(8)
	}

	opts := gofpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader("qr", opts, bytes.NewReader(qrPNG))
	pdf.ImageOptions("qr", 150, 30, 40, 40, false, opts, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
