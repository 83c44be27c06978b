package card

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/signintech/gopdf"
	"github.com/skip2/go-qrcode"
)

// Generator renders visitor cards: a PDF carrying the tourist details and
// an AES-encrypted QR payload that gate scanners decrypt offline.
type Generator struct {
	secret   []byte
	outDir   string
	fontPath string
}

func NewGenerator(secret, outDir, fontPath string) *Generator {
	hashed := sha256.Sum256([]byte(secret)) // normalize to 32 bytes
	return &Generator{secret: hashed[:], outDir: outDir, fontPath: fontPath}
}

// CardData is everything the card template needs.
type CardData struct {
	UserID     int64
	Name       string
	Email      string
	QRPayload  string
	EventName  string
	ValidDates string
}

// EncryptedQR encodes the AES-encrypted payload as a QR PNG.
func (g *Generator) EncryptedQR(payload string) ([]byte, error) {
	encrypted, err := encryptAES([]byte(payload), g.secret)
	if err != nil {
		return nil, err
	}
	return qrcode.Encode(encrypted, qrcode.Medium, 256)
}

// DecryptQRPayload reverses EncryptedQR's encryption; used by scanner
// tooling and tests.
func (g *Generator) DecryptQRPayload(encrypted string) (string, error) {
	plain, err := decryptAES(encrypted, g.secret)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

// CreateVisitorCard renders the card PDF and returns its path.
func (g *Generator) CreateVisitorCard(data CardData) (string, error) {
	qrPNG, err := g.EncryptedQR(data.QRPayload)
	if err != nil {
		return "", fmt.Errorf("failed to generate QR code: %w", err)
	}

	pdf := &gopdf.GoPdf{}
	pdf.Start(gopdf.Config{PageSize: *gopdf.PageSizeA4})
	pdf.AddPage()

	if err := pdf.AddTTFFont("card", g.fontPath); err != nil {
		return "", fmt.Errorf("failed to load font: %w", err)
	}

	if err := pdf.SetFont("card", "", 20); err != nil {
		return "", fmt.Errorf("failed to set font: %w", err)
	}
	pdf.SetXY(40, 40)
	_ = pdf.Cell(nil, "VISITOR CARD")

	if err := pdf.SetFont("card", "", 12); err != nil {
		return "", fmt.Errorf("failed to set font: %w", err)
	}

	lines := []string{
		fmt.Sprintf("Name: %s", data.Name),
		fmt.Sprintf("Event: %s", data.EventName),
		fmt.Sprintf("Valid: %s", data.ValidDates),
	}
	if data.Email != "" {
		lines = append(lines, fmt.Sprintf("Email: %s", data.Email))
	}

	y := 90.0
	for _, line := range lines {
		pdf.SetXY(40, y)
		_ = pdf.Cell(nil, line)
		y += 22
	}

	holder, err := gopdf.ImageHolderByBytes(qrPNG)
	if err != nil {
		return "", fmt.Errorf("failed to load QR image: %w", err)
	}
	if err := pdf.ImageByHolder(holder, 40, y+20, &gopdf.Rect{W: 160, H: 160}); err != nil {
		return "", fmt.Errorf("failed to place QR image: %w", err)
	}

	if err := os.MkdirAll(g.outDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create card directory: %w", err)
	}

	cardPath := filepath.Join(g.outDir, fmt.Sprintf("visitor_card_%d.pdf", data.UserID))
	if err := pdf.WritePdf(cardPath); err != nil {
		return "", fmt.Errorf("failed to write card: %w", err)
	}

	return cardPath, nil
}

func encryptAES(data []byte, key []byte) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}

	ciphertext := make([]byte, aes.BlockSize+len(data))
	iv := ciphertext[:aes.BlockSize]

	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", err
	}

	stream := cipher.NewCFBEncrypter(block, iv)
	stream.XORKeyStream(ciphertext[aes.BlockSize:], data)

	return base64.URLEncoding.EncodeToString(ciphertext), nil
}

func decryptAES(encoded string, key []byte) ([]byte, error) {
	ciphertext, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < aes.BlockSize {
		return nil, fmt.Errorf("ciphertext too short")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	iv := ciphertext[:aes.BlockSize]
	data := make([]byte, len(ciphertext)-aes.BlockSize)

	stream := cipher.NewCFBDecrypter(block, iv)
	stream.XORKeyStream(data, ciphertext[aes.BlockSize:])

	return data, nil
}
