package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

const intakePrompt = `You are a friendly medical intake assistant for an appointment
booking service. Talk with the patient to understand their symptoms. You never
diagnose and never give medical advice; you only collect enough information to
route the patient to the right kind of doctor.

Respond with strict JSON only, no markdown fences, using this shape:
{
  "reply": "<your conversational reply to the patient>",
  "condition": "<short summary of the patient's condition, empty if unknown>",
  "specialty": "<the single best matching doctor specialty, empty if unknown>",
  "has_enough_info": <true when the condition is clear enough to recommend doctors>,
  "is_confirming": <true when the patient is agreeing to proceed with recommendations>
}`

// GeminiRecommender implements Recommender against Google's Gemini API.
// It keeps one chat session per conversation key so that Clear can drop
// the server-held context, and resolves specialties to real doctors
// through the directory.
type GeminiRecommender struct {
	client    *genai.Client
	modelID   string
	directory DoctorDirectory
	log       *zap.Logger

	mu    sync.Mutex
	chats map[string]*genai.ChatSession
}

func NewGeminiRecommender(ctx context.Context, apiKey, modelID string, directory DoctorDirectory, log *zap.Logger) (*GeminiRecommender, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("conversation: gemini api key is required")
	}
	if strings.TrimSpace(modelID) == "" {
		modelID = "gemini-2.5-flash"
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("conversation: create gemini client: %w", err)
	}

	return &GeminiRecommender{
		client:    client,
		modelID:   modelID,
		directory: directory,
		log:       log,
		chats:     make(map[string]*genai.ChatSession),
	}, nil
}

func (g *GeminiRecommender) Recommend(ctx context.Context, key string, transcript []Turn) (Result, error) {
	if len(transcript) == 0 || transcript[len(transcript)-1].Role != TurnUser {
		return Result{}, errors.New("conversation: transcript must end with a user turn")
	}
	last := transcript[len(transcript)-1]

	cs := g.chatFor(key, transcript)

	resp, err := cs.SendMessage(ctx, genai.Text(last.Content))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return Result{}, ErrRecommenderTimeout
		}
		return Result{}, fmt.Errorf("conversation: gemini completion: %w", err)
	}

	text, err := candidateText(resp)
	if err != nil {
		return Result{}, err
	}

	assessment, err := parseAssessment(text)
	if err != nil {
		// Model drifted off the JSON contract; treat the raw text as the
		// reply rather than failing the turn.
		g.log.Warn("gemini returned non-JSON payload", zap.Error(err))
		return Result{Reply: strings.TrimSpace(text)}, nil
	}

	result := Result{
		Reply:         assessment.Reply,
		Condition:     assessment.Condition,
		HasEnoughInfo: assessment.HasEnoughInfo,
		IsConfirming:  assessment.IsConfirming,
	}

	if assessment.HasEnoughInfo && assessment.Specialty != "" {
		doctors, err := g.directory.SearchBySpecialization(ctx, assessment.Specialty)
		if err != nil {
			return Result{}, fmt.Errorf("conversation: doctor search: %w", err)
		}
		if len(doctors) == 0 {
			result.Reply = "I couldn't find any doctors in our network who treat that condition right now. Please try again later or contact support."
		} else {
			result.Recommendations = doctors
			result.Reply = formatRecommendations(assessment.Reply, doctors)
		}
	}

	return result, nil
}

// Clear drops the cached chat context for the key. Stateless from the
// caller's point of view; the next message starts a fresh chat.
func (g *GeminiRecommender) Clear(_ context.Context, key string) error {
	g.mu.Lock()
	delete(g.chats, key)
	g.mu.Unlock()
	return nil
}

func (g *GeminiRecommender) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

// chatFor returns the cached chat session for the key, rebuilding its
// history from the transcript when the cache is cold or out of step
// with it.
func (g *GeminiRecommender) chatFor(key string, transcript []Turn) *genai.ChatSession {
	g.mu.Lock()
	defer g.mu.Unlock()

	if cs, ok := g.cachedChatLocked(key, transcript); ok {
		return cs
	}

	model := g.client.GenerativeModel(g.modelID)
	model.SystemInstruction = genai.NewUserContent(genai.Text(intakePrompt))
	model.ResponseMIMEType = "application/json"

	cs := model.StartChat()
	for _, turn := range transcript[:len(transcript)-1] {
		content := strings.TrimSpace(turn.Content)
		if content == "" {
			continue
		}
		role := "user"
		if turn.Role == TurnAssistant {
			role = "model"
		}
		cs.History = append(cs.History, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(content)},
		})
	}

	g.chats[key] = cs
	return cs
}

// cachedChatLocked hands back the cached chat only when its history
// lines up with the caller's transcript. A conversation restarted after
// a sweep presents a shorter transcript than the cached history;
// replying on top of that context would resume the previous
// conversation, so the stale entry is dropped instead. Callers hold
// g.mu.
func (g *GeminiRecommender) cachedChatLocked(key string, transcript []Turn) (*genai.ChatSession, bool) {
	cs, ok := g.chats[key]
	if !ok {
		return nil, false
	}
	if len(cs.History) != len(transcript)-1 {
		delete(g.chats, key)
		return nil, false
	}
	return cs, true
}

func candidateText(resp *genai.GenerateContentResponse) (string, error) {
	if len(resp.Candidates) == 0 {
		return "", errors.New("conversation: gemini returned no candidates")
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", errors.New("conversation: gemini returned empty content")
	}
	var b strings.Builder
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	return b.String(), nil
}

type assessment struct {
	Reply         string `json:"reply"`
	Condition     string `json:"condition"`
	Specialty     string `json:"specialty"`
	HasEnoughInfo bool   `json:"has_enough_info"`
	IsConfirming  bool   `json:"is_confirming"`
}

// parseAssessment tolerates markdown code fences around the JSON body.
func parseAssessment(text string) (assessment, error) {
	trimmed := strings.TrimSpace(text)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)

	var a assessment
	if err := json.Unmarshal([]byte(trimmed), &a); err != nil {
		return assessment{}, fmt.Errorf("parse assessment: %w", err)
	}
	if a.Reply == "" {
		return assessment{}, errors.New("parse assessment: empty reply")
	}
	return a, nil
}

func formatRecommendations(reply string, doctors []DoctorRef) string {
	var b strings.Builder
	b.WriteString(reply)
	fmt.Fprintf(&b, "\n\nI found %d doctor(s) who can help with your condition:\n", len(doctors))
	for i, d := range doctors {
		fmt.Fprintf(&b, "%d. %s - %s, %s (%d yrs, rated %.1f)\n",
			i+1, d.Name, d.Specialization, d.Location, d.Experience, d.Rating)
	}
	b.WriteString("\nLet me know which doctor you'd like to book with and I can help schedule your appointment.")
	return b.String()
}
