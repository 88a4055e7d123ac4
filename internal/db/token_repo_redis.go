package db

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gachaplan/authsession/internal/autherrors"
	"github.com/gachaplan/authsession/internal/models"
)

// tokenSetRecord is the layout of the token set hash in redis
type tokenSetRecord struct {
	AccessToken  string `mapstructure:"accessToken"`
	RefreshToken string `mapstructure:"refreshToken"`
	// ExpiresAt is in epoch milliseconds, 0 when the access token never expires
	ExpiresAt int64  `mapstructure:"expiresAt"`
	ExpiresIn int64  `mapstructure:"expiresIn"`
	TokenType string `mapstructure:"tokenType"`
	Scope     string `mapstructure:"scope"`
}

func newTokenSetRecord(tokens models.TokenSet) tokenSetRecord {
	record := tokenSetRecord{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		ExpiresIn:    tokens.ExpiresIn,
		TokenType:    tokens.TokenType,
		Scope:        tokens.Scope,
	}
	if !tokens.ExpiresAt.IsZero() {
		record.ExpiresAt = tokens.ExpiresAt.UnixMilli()
	}
	return record
}

func (t tokenSetRecord) tokenSet() models.TokenSet {
	tokens := models.TokenSet{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		ExpiresIn:    t.ExpiresIn,
		TokenType:    t.TokenType,
		Scope:        t.Scope,
	}
	if t.ExpiresAt != 0 {
		tokens.ExpiresAt = time.UnixMilli(t.ExpiresAt)
	}
	return tokens
}

// GetTokenSet reads the token set from redis, decrypting the token values if necessary.
func (r RedisAdapter) GetTokenSet(ctx context.Context) (models.TokenSet, error) {
	raw, err := r.rdb.HGetAll(ctx, r.tokenSetKey()).Result()
	if err != nil {
		return models.TokenSet{}, err
	}
	var record tokenSetRecord
	err = r.deserializeToStruct(raw, &record)
	if err != nil {
		if errors.Is(err, autherrors.ErrMissingDBResource) {
			err = autherrors.ErrTokensNotFound
		}
		return models.TokenSet{}, err
	}
	tokens, err := record.tokenSet().SetEncryptor(r.encryptor).Decrypt()
	if err != nil {
		return models.TokenSet{}, err
	}
	return tokens.SetEncryptor(nil), nil
}

// SetTokenSet writes all the fields of the token set hash so that no stale value survives a previous write.
func (r RedisAdapter) SetTokenSet(ctx context.Context, tokens models.TokenSet) error {
	encTokens, err := tokens.SetEncryptor(r.encryptor).Encrypt()
	if err != nil {
		return err
	}
	slog.Debug(
		"TOKEN STORE",
		"message",
		"saving token set",
		"tokens",
		tokens,
		"key",
		r.tokenSetKey(),
	)
	return r.rdb.HSet(
		ctx,
		r.tokenSetKey(),
		r.serializeStruct(newTokenSetRecord(encTokens))...,
	).Err()
}

func (r RedisAdapter) RemoveTokenSet(ctx context.Context) error {
	slog.Debug("TOKEN STORE", "message", "removing token set", "key", r.tokenSetKey())
	return r.rdb.Del(ctx, r.tokenSetKey()).Err()
}
