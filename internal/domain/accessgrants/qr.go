package accessgrants

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	QRTypeAccessRequest = "health_access_request"
	QRVersion           = "1.0"
)

// QRPayload es lo que codifica el QR del paciente.
type QRPayload struct {
	Type              string `json:"type"`
	DigitalIdentifier string `json:"digitalIdentifier"`
	Version           string `json:"version"`
	Timestamp         int64  `json:"timestamp"`
}

// ParseQRPayload acepta el JSON crudo o el JSON en base64 (std o url, con o sin padding).
// Se rechaza antes de crear cualquier grant si el type no coincide o falta el identificador.
func ParseQRPayload(raw string) (QRPayload, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return QRPayload{}, fmt.Errorf("%w: scannedQRData required", ErrInvalidInput)
	}

	data := []byte(raw)
	if !strings.HasPrefix(raw, "{") {
		decoded, err := decodeBase64(raw)
		if err != nil {
			return QRPayload{}, fmt.Errorf("%w: scannedQRData is neither json nor base64", ErrInvalidInput)
		}
		data = decoded
	}

	var p QRPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return QRPayload{}, fmt.Errorf("%w: scannedQRData is not valid json", ErrInvalidInput)
	}

	if p.Type != QRTypeAccessRequest {
		return QRPayload{}, fmt.Errorf("%w: unsupported qr type %q", ErrInvalidInput, p.Type)
	}
	p.DigitalIdentifier = strings.TrimSpace(p.DigitalIdentifier)
	if p.DigitalIdentifier == "" {
		return QRPayload{}, fmt.Errorf("%w: qr digitalIdentifier missing", ErrInvalidInput)
	}
	return p, nil
}

// EncodeQRPayload arma el payload base64 que el paciente muestra como QR.
// El render de la imagen queda del lado del cliente.
func EncodeQRPayload(digitalIdentifier string, at time.Time) string {
	b, _ := json.Marshal(QRPayload{
		Type:              QRTypeAccessRequest,
		DigitalIdentifier: digitalIdentifier,
		Version:           QRVersion,
		Timestamp:         at.UnixMilli(),
	})
	return base64.StdEncoding.EncodeToString(b)
}

func decodeBase64(s string) ([]byte, error) {
	encodings := []*base64.Encoding{
		base64.StdEncoding,
		base64.URLEncoding,
		base64.RawStdEncoding,
		base64.RawURLEncoding,
	}
	var lastErr error
	for _, enc := range encodings {
		b, err := enc.DecodeString(s)
		if err == nil {
			return b, nil
		}
		lastErr = err
	}
	return nil, lastErr
}
