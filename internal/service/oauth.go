package service

import (
	"context"

	"github.com/xiaot623/gogo/apm/internal/domain"
	"github.com/xiaot623/gogo/apm/internal/oauth1"
)

// TwitterRequestToken obtains an OAuth1 request token for the given
// consumer credentials.
func (s *Service) TwitterRequestToken(ctx context.Context, creds oauth1.Credentials) (map[string]string, error) {
	if creds.APIKey == "" || creds.APISecret == "" {
		return nil, domain.InvalidArgument("api_key and api_secret are required")
	}
	if s.signer == nil {
		return nil, domain.Internal("oauth signer not configured", nil)
	}

	token, err := s.signer.RequestToken(ctx, creds)
	if err != nil {
		return nil, domain.Internal("request token failed", err)
	}
	return token, nil
}
