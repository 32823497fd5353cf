// Package dispatcher delivers transactional email through a set of
// interchangeable providers, tolerating provider outages and overload
// without losing or duplicating messages.
//
// Submitted messages are recorded and queued; a single background consumer
// delivers them one at a time. Each delivery takes a slot from a global
// sliding-window rate limiter and then rotates through the providers,
// starting with the one that last succeeded. Every provider sits behind its
// own circuit breaker. When a whole rotation fails the consumer backs off
// exponentially and tries again, up to the configured number of retries.
//
// # Basic Usage
//
//	svc, err := dispatcher.New(dispatcher.DefaultConfig(), nil,
//		dispatcher.WithSendGrid(os.Getenv("SENDGRID_API_KEY")),
//		dispatcher.WithMailgun(os.Getenv("MAILGUN_API_KEY"), "mg.example.com"),
//	)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer svc.Close(context.Background())
//
//	attempt, err := svc.Submit(ctx, &dispatcher.Message{
//		ID:      "welcome-42",
//		To:      "user@example.com",
//		From:    "noreply@example.com",
//		Subject: "Welcome",
//		Body:    "Welcome!",
//	})
//
//	// later
//	status, ok := svc.Status("welcome-42")
//
// Submitting an id that has already been sent returns the existing record
// and delivers nothing.
//
// # Supported Providers
//
//   - AWS SES
//   - SendGrid
//   - Mailgun
//   - Generic SMTP
//   - Mock (simulated latency and failures, for testing)
package dispatcher
