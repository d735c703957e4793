package utils

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"os"
	"strings"
)

func GetDataFromUrl(ctx context.Context, url string) ([]byte, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	response, err := http.DefaultClient.Do(request)
	if err != nil {
		return nil, err
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: `%s` for %s", response.Status, url)
	}

	return io.ReadAll(response.Body)
}

func DownloadImageAsBase64(ctx context.Context, url string) (string, error) {
	imageData, err := GetDataFromUrl(ctx, url)
	if err != nil {
		return "", err
	}

	return base64.StdEncoding.EncodeToString(imageData), nil
}

// ReadImageAsBase64 loads an image from a local path or an http(s) URL.
func ReadImageAsBase64(ctx context.Context, source string) (string, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return DownloadImageAsBase64(ctx, source)
	}
	imageData, err := os.ReadFile(source)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(imageData), nil
}

func Base64ToByteReader(base64Str string) (*bytes.Reader, error) {
	data, err := base64.StdEncoding.DecodeString(trimDataURL(base64Str))
	if err != nil {
		return nil, err
	}

	return bytes.NewReader(data), nil
}

// trimDataURL cuts a "data:image/*;base64," prefix, if present.
func trimDataURL(base64Str string) string {
	if _, after, found := strings.Cut(base64Str, ";base64,"); found {
		return after
	}
	return base64Str
}

func GetBase64ImageSize(base64Str string) (int, int, error) {
	reader, err := Base64ToByteReader(base64Str)
	if err != nil {
		return 0, 0, err
	}

	config, _, err := image.DecodeConfig(reader)
	if err != nil {
		return 0, 0, err
	}

	return config.Width, config.Height, nil
}
