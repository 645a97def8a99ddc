package config

import (
	"context"
	"encoding/base64"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

// InitMessaging initializes the Firebase Admin SDK and returns its
// messaging client. It returns nil, nil when no credentials are configured.
func InitMessaging(ctx context.Context, s *Settings) (*messaging.Client, error) {
	var opt option.ClientOption
	switch {
	case s.FirebaseCredentialsBase64 != "":
		decoded, err := base64.StdEncoding.DecodeString(s.FirebaseCredentialsBase64)
		if err != nil {
			return nil, fmt.Errorf("decoding base64 firebase credentials: %w", err)
		}
		opt = option.WithCredentialsJSON(decoded)
	case s.FirebaseCredentialsFile != "":
		opt = option.WithCredentialsFile(s.FirebaseCredentialsFile)
	default:
		return nil, nil
	}

	var conf *firebase.Config
	if s.FirebaseProjectID != "" {
		conf = &firebase.Config{ProjectID: s.FirebaseProjectID}
	}

	app, err := firebase.NewApp(ctx, conf, opt)
	if err != nil {
		return nil, fmt.Errorf("initializing firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("initializing firebase messaging: %w", err)
	}
	return client, nil
}
