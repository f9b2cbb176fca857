package translate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/viper"
	"github.com/valyala/fasthttp"
)

const DefaultTimeout = 10 * time.Second

var ErrEmptyTranslation = errors.New("translation service returned nothing")

// LibreClient calls a LibreTranslate compatible endpoint.
type LibreClient struct {
	Endpoint string
	ApiKey   string
	Timeout  time.Duration
	Client   *fasthttp.Client
}

func NewLibreClient() *LibreClient {
	return &LibreClient{
		Endpoint: viper.GetString("translate.endpoint"),
		ApiKey:   viper.GetString("translate.api_key"),
		Timeout:  viper.GetDuration("translate.timeout"),
		Client:   &fasthttp.Client{Name: "chatsync"},
	}
}

type libreRequest struct {
	Text   string `json:"q"`
	Source string `json:"source"`
	Target string `json:"target"`
	Format string `json:"format"`
	ApiKey string `json:"api_key,omitempty"`
}

type libreResponse struct {
	TranslatedText string `json:"translatedText"`
	Error          string `json:"error"`
}

func (v *LibreClient) Translate(ctx context.Context, text string, targetLang string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	body, err := jsoniter.Marshal(libreRequest{
		Text:   text,
		Source: "auto",
		Target: targetLang,
		Format: "text",
		ApiKey: v.ApiKey,
	})
	if err != nil {
		return "", err
	}

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(strings.TrimSuffix(v.Endpoint, "/") + "/translate")
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.SetBody(body)

	if err := v.Client.DoDeadline(req, resp, v.deadline(ctx)); err != nil {
		return "", fmt.Errorf("unable to reach translation service: %w", err)
	}

	var out libreResponse
	if err := jsoniter.Unmarshal(resp.Body(), &out); err != nil && resp.StatusCode() == fasthttp.StatusOK {
		return "", fmt.Errorf("unable to decode translation: %w", err)
	}
	if resp.StatusCode() != fasthttp.StatusOK {
		return "", fmt.Errorf("translation service responded %d: %s", resp.StatusCode(), out.Error)
	}
	if len(out.TranslatedText) == 0 {
		return "", ErrEmptyTranslation
	}
	return out.TranslatedText, nil
}

func (v *LibreClient) deadline(ctx context.Context) time.Time {
	timeout := v.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	deadline := time.Now().Add(timeout)
	if until, ok := ctx.Deadline(); ok && until.Before(deadline) {
		return until
	}
	return deadline
}
