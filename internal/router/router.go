package router

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"voxbridge/internal/auth"
	"voxbridge/internal/credential"
	"voxbridge/internal/intent"
	"voxbridge/internal/metrics"
	"voxbridge/internal/model"
	"voxbridge/internal/store"
)

// TokenSource resolves a live access token for (user, provider).
// An empty token with a nil error means the provider was never
// connected.
type TokenSource interface {
	GetAccessToken(ctx context.Context, userID, provider string) (string, error)
}

// Workflows is the slice of the workflow client the router needs.
type Workflows interface {
	Query(ctx context.Context, path string, payload map[string]any) (string, error)
	Act(ctx context.Context, path string, payload map[string]any) (map[string]any, error)
}

// Router dispatches a confirmed intent to its destination: a durable
// local write, an external query workflow, or an external action
// workflow. It never retries; failures propagate to the caller once.
type Router struct {
	store     *store.Store
	workflows Workflows
	tokens    TokenSource
	geminiKey string
	logger    zerolog.Logger
}

func New(st *store.Store, wf Workflows, tokens TokenSource, geminiKey string, logger zerolog.Logger) *Router {
	return &Router{
		store:     st,
		workflows: wf,
		tokens:    tokens,
		geminiKey: geminiKey,
		logger:    logger.With().Str("component", "router").Logger(),
	}
}

// Execute runs one validated intent and returns the user-visible
// outcome message.
func (r *Router) Execute(ctx context.Context, userID string, in intent.Intent) (string, error) {
	in.Normalize()
	if err := in.Validate(); err != nil {
		return "", err
	}

	var msg string
	var err error
	switch in.Type {
	case intent.TypeLog:
		msg, err = r.executeLog(userID, in)
	case intent.TypeQuery:
		msg, err = r.executeQuery(ctx, userID, in)
	case intent.TypeAct:
		msg, err = r.executeAct(ctx, userID, in)
	}

	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.IntentExecutions.WithLabelValues(string(in.Type), in.Category, status).Inc()
	if err != nil {
		r.logger.Warn().Err(err).Str("type", string(in.Type)).Str("category", in.Category).Msg("intent execution failed")
		return "", err
	}
	return msg, nil
}

func (r *Router) executeLog(userID string, in intent.Intent) (string, error) {
	switch in.Category {
	case "expense", "income":
		return r.writeTransaction(userID, in)
	case "contact":
		name := intent.EntityString(in.Entities, "name")
		if name == "" {
			name = in.Title
		}
		c, err := r.store.InsertContact(model.Contact{
			UserID:   userID,
			Name:     name,
			Role:     intent.EntityString(in.Entities, "role"),
			Company:  intent.EntityString(in.Entities, "company"),
			Phone:    intent.EntityString(in.Entities, "phone"),
			WhereMet: intent.EntityString(in.Entities, "where_met", "location"),
			Why:      in.Detail,
			WhenMet:  entityDate(in.Entities),
			Status:   "New Connection",
		})
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Saved contact %s", c.Name), nil
	case "event":
		title := in.Title
		if title == "" {
			title = intent.EntityString(in.Entities, "title")
		}
		category := intent.EntityString(in.Entities, "category")
		if category == "" {
			category = "Personal"
		}
		e, err := r.store.InsertCalendarEvent(model.CalendarEvent{
			UserID:   userID,
			Title:    title,
			Date:     entityDate(in.Entities),
			Time:     intent.EntityString(in.Entities, "time"),
			Duration: intent.EntityString(in.Entities, "duration"),
			Location: intent.EntityString(in.Entities, "location"),
			Category: category,
			Color:    intent.EventColor(category),
		})
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Added %s to your calendar", e.Title), nil
	}
	return "", &intent.ValidationError{Msg: fmt.Sprintf("unknown log category: %q", in.Category)}
}

func (r *Router) writeTransaction(userID string, in intent.Intent) (string, error) {
	bucket := intent.TransactionBucket(in.Category, in.Entities)
	amount := intent.NormalizeAmount(bucket, intent.EntityAmount(in.Entities, "amount"))
	vendor := intent.EntityString(in.Entities, "store", "vendor", "merchant")
	if vendor == "" {
		vendor = in.Title
	}
	tx, err := r.store.InsertTransaction(model.Transaction{
		UserID:   userID,
		Date:     entityDate(in.Entities),
		Store:    vendor,
		Amount:   amount,
		Category: bucket,
		Status:   "Pending",
		Summary:  in.Detail,
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Logged %s: %s ($%.2f)", bucket, tx.Store, tx.Amount), nil
}

func (r *Router) executeQuery(ctx context.Context, userID string, in intent.Intent) (string, error) {
	query := in.Detail
	if query == "" {
		query = in.Title
	}
	return r.workflows.Query(ctx, intent.QueryWorkflow(in.Category), map[string]any{
		"user_id":    userID,
		"user_token": auth.CallerToken(ctx),
		"query":      query,
		"category":   in.Category,
		"gemini_key": r.geminiKey,
	})
}

func (r *Router) executeAct(ctx context.Context, userID string, in intent.Intent) (string, error) {
	if path, external := intent.ActWorkflow(in.Category); external {
		return r.executeExternalAct(ctx, userID, path, in)
	}

	switch in.Category {
	case "todo":
		workspaceID, err := r.store.FirstWorkspaceID(userID)
		if err != nil {
			return "", err
		}
		text := in.Title
		if text == "" {
			text = intent.EntityString(in.Entities, "text", "task")
		}
		priority := intent.EntityString(in.Entities, "priority")
		if priority == "" {
			priority = "medium"
		}
		todo, err := r.store.InsertTodo(model.Todo{
			UserID:      userID,
			WorkspaceID: workspaceID,
			Text:        text,
			DueDate:     entityDate(in.Entities),
			Priority:    priority,
		})
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Added todo: %s", todo.Text), nil
	case "workspace":
		wsType := intent.WorkspaceType(intent.EntityString(in.Entities, "type"))
		ws, err := r.store.InsertWorkspace(model.Workspace{
			UserID: userID,
			Title:  in.Title,
			Type:   wsType,
			Color:  intent.WorkspaceColor(wsType),
		})
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Created workspace %s", ws.Title), nil
	case "contact":
		c, err := r.store.InsertContact(model.Contact{
			UserID:  userID,
			Name:    in.Title,
			Role:    intent.EntityString(in.Entities, "role"),
			Company: intent.EntityString(in.Entities, "company"),
			Phone:   intent.EntityString(in.Entities, "phone"),
			Why:     in.Detail,
			Status:  "New Connection",
		})
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Saved contact %s", c.Name), nil
	case "transaction":
		return r.writeTransaction(userID, in)
	case "draft":
		d, err := r.store.InsertDraft(model.Draft{
			UserID:        userID,
			Type:          intent.EntityString(in.Entities, "type"),
			Title:         in.Title,
			Detail:        in.Detail,
			TargetAccount: intent.EntityString(in.Entities, "account", "to"),
			Status:        "draft",
		})
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Saved draft: %s", d.Title), nil
	}
	return "", &intent.ValidationError{Msg: fmt.Sprintf("unknown act category: %q", in.Category)}
}

func (r *Router) executeExternalAct(ctx context.Context, userID, path string, in intent.Intent) (string, error) {
	token, err := r.tokens.GetAccessToken(ctx, userID, "google")
	if err != nil {
		return "", err
	}
	if token == "" {
		return "", &credential.AuthError{
			Provider: "google",
			Msg:      "connect your Google account first to send email or create events",
		}
	}

	result, err := r.workflows.Act(ctx, path, map[string]any{
		"user_id":             userID,
		"google_access_token": token,
		"category":            in.Category,
		"title":               in.Title,
		"detail":              in.Detail,
		"entities":            in.Entities,
	})
	if err != nil {
		return "", err
	}
	if msg, ok := result["message"].(string); ok && msg != "" {
		return msg, nil
	}
	return "Action completed", nil
}

func entityDate(entities map[string]any) string {
	if d := intent.EntityString(entities, "date", "when"); d != "" {
		return d
	}
	return time.Now().Format("2006-01-02")
}
