package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode"

	"github.com/gachaplan/authsession/internal/autherrors"
	"github.com/gachaplan/authsession/internal/models"
	"github.com/mitchellh/mapstructure"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const maxResponseBytes int64 = 1 << 20

// tokenResponse is the token endpoint answer after its keys were converted to camel case
type tokenResponse struct {
	AccessToken  string         `mapstructure:"accessToken"`
	RefreshToken string         `mapstructure:"refreshToken"`
	ExpiresIn    int64          `mapstructure:"expiresIn"`
	TokenType    string         `mapstructure:"tokenType"`
	Scope        string         `mapstructure:"scope"`
	Extra        map[string]any `mapstructure:",remain"`
}

func (t tokenResponse) String() string {
	return fmt.Sprintf(
		"Type: %v, ExpiresIn: %v, Scope: %v, HasRefreshToken: %v",
		t.TokenType,
		t.ExpiresIn,
		t.Scope,
		t.RefreshToken != "",
	)
}

// token posts the form to the token endpoint and converts the answer into a token set.
// The token set is returned as is, storing it is up to the caller.
func (c *Client) token(ctx context.Context, form models.OrderedForm) (models.TokenSet, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout())
	defer cancel()

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.config.TokenURL(),
		bytes.NewBufferString(form.Encode()),
	)
	if err != nil {
		return models.TokenSet{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	grantType, _ := form.Get("grant_type")
	slog.Debug("AUTH CLIENT", "message", "requesting tokens", "url", c.config.TokenURL(), "grantType", grantType)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return models.TokenSet{}, transportError(ctx, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return models.TokenSet{}, serverError(autherrors.ErrTokenExchangeRejected, resp)
	}

	raw := map[string]any{}
	decoder := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes))
	decoder.UseNumber()
	err = decoder.Decode(&raw)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return models.TokenSet{}, transportError(ctx, err)
		}
		return models.TokenSet{}, fmt.Errorf("%w: cannot decode the response: %w", autherrors.ErrTokenExchangeRejected, err)
	}
	parsed, err := decodeTokenResponse(raw)
	if err != nil {
		return models.TokenSet{}, fmt.Errorf("%w: %w", autherrors.ErrTokenExchangeRejected, err)
	}
	if parsed.AccessToken == "" {
		return models.TokenSet{}, fmt.Errorf("%w: the response has no access token", autherrors.ErrTokenExchangeRejected)
	}
	slog.Debug("AUTH CLIENT", "message", "new tokens received", "response", parsed.String())

	tokens := models.TokenSet{
		AccessToken:  parsed.AccessToken,
		RefreshToken: parsed.RefreshToken,
		ExpiresIn:    parsed.ExpiresIn,
		TokenType:    parsed.TokenType,
		Scope:        parsed.Scope,
		Extra:        parsed.Extra,
	}
	if parsed.ExpiresIn != 0 {
		tokens.ExpiresAt = c.now().Add(time.Duration(parsed.ExpiresIn) * time.Second)
	}
	return tokens, nil
}

func decodeTokenResponse(raw map[string]any) (tokenResponse, error) {
	normalized := make(map[string]any, len(raw))
	for key, value := range raw {
		normalized[camelCase(key)] = value
	}
	var output tokenResponse
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &output,
	})
	if err != nil {
		return tokenResponse{}, err
	}
	err = decoder.Decode(normalized)
	if err != nil {
		return tokenResponse{}, err
	}
	return output, nil
}

var (
	lowerCaser = cases.Lower(language.Und)
	titleCaser = cases.Title(language.Und)
)

// camelCase turns keys like "access_token", "not-before-policy" or "accessToken" into "accessToken",
// "notBeforePolicy" and "accessToken"
func camelCase(key string) string {
	var words []string
	for _, segment := range strings.FieldsFunc(key, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		words = append(words, splitCase(segment)...)
	}
	if len(words) == 0 {
		return key
	}
	var buf strings.Builder
	buf.WriteString(lowerCaser.String(words[0]))
	for _, word := range words[1:] {
		buf.WriteString(titleCaser.String(word))
	}
	return buf.String()
}

// splitCase cuts a segment where a lower case letter or digit is followed by an upper case one
// and before the last capital of an acronym followed by a lower case letter, "XMLHttpId" gives XML, Http, Id.
func splitCase(segment string) []string {
	runes := []rune(segment)
	var words []string
	start := 0
	for i := 1; i < len(runes); i++ {
		prev, cur := runes[i-1], runes[i]
		acronymEnd := unicode.IsUpper(prev) && unicode.IsUpper(cur) && i+1 < len(runes) && unicode.IsLower(runes[i+1])
		if (unicode.IsUpper(cur) && !unicode.IsUpper(prev)) || acronymEnd {
			words = append(words, string(runes[start:i]))
			start = i
		}
	}
	return append(words, string(runes[start:]))
}

// serverError reads the OAuth error code from the body of a rejected request
func serverError(kind error, resp *http.Response) error {
	body := struct {
		Error string `json:"error"`
	}{}
	_ = json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&body)
	slog.Debug(
		"AUTH CLIENT",
		"message",
		"the authorization server rejected the request",
		"status",
		resp.StatusCode,
		"error",
		body.Error,
	)
	return &autherrors.ServerError{Kind: kind, StatusCode: resp.StatusCode, Code: body.Error}
}
