package inject

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/hallgrim/uplift/internal/uitree"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// placeholderGIF is a valid 1x1 transparent GIF. First-party assets never
// leave the browser as real bytes; this stub satisfies the control while the
// page-context interceptor substitutes the real URL into the outgoing
// request.
var placeholderGIF = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00, 0x80, 0x00,
	0x00, 0x00, 0x00, 0x00, 0xff, 0xff, 0xff, 0x21, 0xf9, 0x04, 0x01, 0x00,
	0x00, 0x00, 0x00, 0x2c, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00,
	0x00, 0x02, 0x02, 0x44, 0x01, 0x00, 0x3b,
}

var mimeByExt = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".avif": "image/avif",
	".bmp":  "image/bmp",
}

// guessNameAndMIME derives a filename and MIME type from a URL, defaulting
// to JPEG when the extension is unrecognized.
func guessNameAndMIME(rawURL string) (string, string) {
	name := "image.jpg"
	if u, err := url.Parse(rawURL); err == nil {
		if base := path.Base(u.Path); base != "" && base != "/" && base != "." {
			name = base
		}
	}
	ext := strings.ToLower(path.Ext(name))
	if mime, ok := mimeByExt[ext]; ok {
		return name, mime
	}
	if ext == "" {
		name += ".jpg"
	}
	return name, "image/jpeg"
}

// isFirstPartyAsset reports whether the URL belongs to the target
// application's own asset domains, where a placeholder-plus-interception
// upload avoids downloading content the server already has.
func (o *Orchestrator) isFirstPartyAsset(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Host)
	for _, h := range o.cfg.FirstPartyHosts {
		if h != "" && strings.Contains(host, strings.ToLower(h)) {
			return true
		}
	}
	return false
}

// buildPlaceholder builds the stub payload for a first-party asset.
func buildPlaceholder(sourceURL string) uitree.FilePayload {
	name, _ := guessNameAndMIME(sourceURL)
	return uitree.FilePayload{Filename: name, MIMEType: "image/gif", Data: placeholderGIF}
}

// buildFetched retrieves the real bytes for a third-party URL. Secure URLs
// go straight through the relay's typed fetch; insecure schemes take the
// generic relayed round-trip, and the data URL in the response is
// reassembled into a binary payload.
func (o *Orchestrator) buildFetched(ctx context.Context, sourceURL string) (uitree.FilePayload, error) {
	name, mime := guessNameAndMIME(sourceURL)
	if strings.HasPrefix(sourceURL, "https://") {
		res, err := o.relay.ProxyFetch(ctx, sourceURL)
		if err != nil {
			return uitree.FilePayload{}, err
		}
		if res.MIMEType != "" && res.MIMEType != "application/octet-stream" {
			mime = res.MIMEType
		}
		return uitree.FilePayload{Filename: name, MIMEType: mime, Data: res.Data}, nil
	}

	raw, err := o.relay.Send(ctx, "proxyFetch", map[string]string{"url": sourceURL}, 20*time.Second)
	if err != nil {
		return uitree.FilePayload{}, err
	}
	var resp struct {
		Success bool   `json:"success"`
		DataURL string `json:"data_url"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return uitree.FilePayload{}, fmt.Errorf("decode relayed fetch response: %w", err)
	}
	if !resp.Success {
		return uitree.FilePayload{}, fmt.Errorf("relayed fetch failed: %s", resp.Error)
	}
	data, respMIME, err := decodeDataURL(resp.DataURL)
	if err != nil {
		return uitree.FilePayload{}, err
	}
	if respMIME != "" && respMIME != "application/octet-stream" {
		mime = respMIME
	}
	return uitree.FilePayload{Filename: name, MIMEType: mime, Data: data}, nil
}

func decodeDataURL(dataURL string) ([]byte, string, error) {
	rest, ok := strings.CutPrefix(dataURL, "data:")
	if !ok {
		return nil, "", fmt.Errorf("not a data URL")
	}
	meta, b64, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, "", fmt.Errorf("malformed data URL")
	}
	mime, _, _ := strings.Cut(meta, ";")
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, "", fmt.Errorf("decode data URL body: %w", err)
	}
	return data, mime, nil
}
