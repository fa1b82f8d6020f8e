package novasonic

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"

	"github.com/FACorreiaa/go-insurance-assistant/internal/types"
)

// Provider wraps the Nova Sonic voice pipeline. The real-time STT/TTS leg is
// not wired up: transcripts get keyword-matched canned replies and audio out
// is a placeholder PCM frame. The AWS client configuration is real so the
// session plumbing does not change when the pipeline lands.
type Provider struct {
	awsCfg  aws.Config
	modelID string
	logger  *slog.Logger
}

func NewProvider(ctx context.Context, region, modelID string, logger *slog.Logger) (*Provider, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
	}
	if key, secret := os.Getenv("AWS_ACCESS_KEY_ID"), os.Getenv("AWS_SECRET_ACCESS_KEY"); key != "" && secret != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(credentials.StaticCredentialsProvider{
			Value: aws.Credentials{AccessKeyID: key, SecretAccessKey: secret},
		}))
	} else {
		logger.Warn("AWS credentials missing for Nova Sonic provider; voice pipeline stays emulated")
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config for voice provider: %w", err)
	}

	return &Provider{
		awsCfg:  cfg,
		modelID: modelID,
		logger:  logger,
	}, nil
}

// greetingFor opens a voice session with whatever we know about the caller.
func (p *Provider) greetingFor(uc types.UserContext) string {
	if uc.Name != nil && *uc.Name != "" {
		return fmt.Sprintf("Welcome back, %s. How can I help you with your insurance today?", *uc.Name)
	}
	return "Hello, thank you for calling. How can I help you with your insurance today?"
}

// StartSession logs the pipeline that would be constructed and returns the
// opening line for the session. No audio transport is created.
func (p *Provider) StartSession(ctx context.Context, sessionID string, uc types.UserContext) string {
	p.logger.InfoContext(ctx, "Voice pipeline prepared",
		slog.String("sessionID", sessionID),
		slog.String("model", p.modelID),
		slog.String("region", p.awsCfg.Region),
	)
	return p.greetingFor(uc)
}

// RespondToTranscript produces the emulated assistant reply for one
// transcript. Keyword matching stands in for the model until the streaming
// pipeline is real.
func (p *Provider) RespondToTranscript(transcript string, uc types.UserContext) string {
	t := strings.ToLower(transcript)
	switch {
	case strings.Contains(t, "hello") || strings.Contains(t, "hi"):
		return p.greetingFor(uc)
	case strings.Contains(t, "claim"):
		return "I can help with your claim. Could you tell me your policy number and what happened?"
	case strings.Contains(t, "life"):
		return "Life insurance is a great choice. May I ask your age so I can suggest suitable plans?"
	case strings.Contains(t, "health"):
		return "For health insurance, could you tell me a bit about your location and coverage needs?"
	case strings.Contains(t, "auto") || strings.Contains(t, "car"):
		return "For auto insurance I'll need your vehicle details. What car do you drive?"
	case strings.Contains(t, "price") || strings.Contains(t, "cost") || strings.Contains(t, "quote"):
		return "Prices depend on your profile. I can have a human agent prepare a verified quote for you."
	case strings.Contains(t, "bye") || strings.Contains(t, "thank"):
		return "Thank you for calling. Have a great day!"
	default:
		return "I'm listening. Could you tell me more about what kind of insurance you're interested in?"
	}
}

// SynthesizeSpeech returns placeholder audio for the given text: a short
// silent 16 kHz mono PCM frame. Real TTS replaces this.
func (p *Provider) SynthesizeSpeech(text string) []byte {
	const sampleRate = 16000
	const durationMs = 250
	return make([]byte, sampleRate*durationMs/1000*2)
}
