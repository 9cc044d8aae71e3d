package tools

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

var weatherTable = map[string]string{
	"New York": "Sunny, 25°C",
	"London":   "Cloudy, 18°C",
	"Tokyo":    "Rainy, 22°C",
}

// RegisterBuiltins adds the stock tools. log receives send_email output in
// place of a mail transport.
func RegisterBuiltins(r *Registry, log *zap.Logger, now func() time.Time) error {
	if log == nil {
		log = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	builtins := []Tool{
		{
			Name:        "fetch_current_datetime",
			Description: "Get the current time as a JSON string.",
			Parameters:  object(nil),
			Handler: func(ctx context.Context, _ map[string]any) (string, error) {
				return encode(map[string]string{"current_time": now().Format("2006-01-02 15:04:05")})
			},
		},
		{
			Name:        "fetch_weather",
			Description: "Fetches the weather information for the specified location.",
			Parameters: object(map[string]any{
				"location": prop("string", "The location to fetch weather for."),
			}, "location"),
			Handler: func(ctx context.Context, args map[string]any) (string, error) {
				w, ok := weatherTable[stringArg(args, "location")]
				if !ok {
					w = "Weather data not available for this location."
				}
				return encode(map[string]string{"weather": w})
			},
		},
		{
			Name:        "send_email",
			Description: "Sends an email to the specified recipient.",
			Parameters: object(map[string]any{
				"recipient": prop("string", "The email address of the recipient."),
				"subject":   prop("string", "The subject of the email."),
				"body":      prop("string", "The body content of the email."),
			}, "recipient", "subject", "body"),
			Handler: func(ctx context.Context, args map[string]any) (string, error) {
				recipient := stringArg(args, "recipient")
				if recipient == "" {
					return "", fmt.Errorf("send_email: recipient is required")
				}
				log.Info("email sent",
					zap.String("recipient", recipient),
					zap.String("subject", stringArg(args, "subject")),
					zap.String("body", stringArg(args, "body")))
				return encode(map[string]string{"message": fmt.Sprintf("Email successfully sent to %s.", recipient)})
			},
		},
	}
	for _, t := range builtins {
		if err := r.Register(t); err != nil {
			return err
		}
	}
	return nil
}

func object(props map[string]any, required ...string) map[string]any {
	if props == nil {
		props = map[string]any{}
	}
	if required == nil {
		required = []string{}
	}
	return map[string]any{"type": "object", "properties": props, "required": required}
}

func prop(typ, desc string) map[string]any {
	return map[string]any{"type": typ, "description": desc}
}
