package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/scrimworks/vendorvet/internal/model"
	"github.com/scrimworks/vendorvet/internal/task"
	"github.com/scrimworks/vendorvet/internal/vetting"
)

var servePort int

// vetRunner and discoverRunner decouple the HTTP layer from the concrete
// pipelines so handlers can be tested with fakes.
type vetRunner interface {
	Run(ctx context.Context, vendor string) (*vetting.Result, error)
}

type discoverRunner interface {
	Run(ctx context.Context, prompt string) (*model.VendorShortlist, error)
}

// chatMessage is the response envelope for the chat endpoint.
type chatMessage struct {
	Role        string `json:"role"`
	Content     string `json:"content"`
	ContentType string `json:"content_type"`
}

// chatIntent is the routing decision extracted from a chat message.
type chatIntent struct {
	Intent string `json:"intent"`
	Vendor string `json:"vendor,omitempty"`
}

const intentInstruction = `You are a supply-chain management assistant. Classify the user's request into exactly one intent:

- "vet": the user names a specific company and wants a risk analysis or deep-dive report on it. Examples: "Vet the company Microsoft", "I need a risk report on NVIDIA", "Tell me about Boeing's supply chain risks".
- "discover": the user wants to find potential suppliers for a material or product in some location. Examples: "Find me suppliers for concrete in Riyadh", "Who can sell us screws in Germany?", "I need a list of rebar vendors for a project in Japan".
- "other": anything else.

Respond with a JSON object with keys "intent" and, for the "vet" intent, "vendor" holding the company name.

User request: %q`

const assistInstruction = `You are a supply-chain management assistant. Answer the user's question about procurement, logistics, or supply-chain risk comprehensively and accurately. If the question is outside your domain, say so briefly and describe what you can help with: vetting a named vendor, or discovering suppliers for a material in a location.

User request: %q`

// buildRouter wires the chat and health endpoints. The executor handles
// intent routing; the runners handle the two pipeline intents.
func buildRouter(exec task.Executor, vetter vetRunner, discoverer discoverRunner) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/chat", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			Content string `json:"content"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
			return
		}
		if strings.TrimSpace(body.Content) == "" {
			http.Error(w, `{"error":"content is required"}`, http.StatusBadRequest)
			return
		}

		ctx := req.Context()

		var intent chatIntent
		if err := exec.Execute(ctx, fmt.Sprintf(intentInstruction, body.Content), task.TierLite, &intent); err != nil {
			zap.L().Error("chat intent extraction failed", zap.Error(err))
			writeChatError(w, "I could not understand that request. Please try again.")
			return
		}

		switch intent.Intent {
		case "vet":
			result, err := vetter.Run(ctx, intent.Vendor)
			if err != nil {
				zap.L().Error("chat vetting failed",
					zap.String("vendor", intent.Vendor),
					zap.Error(err),
				)
				writeChatError(w, fmt.Sprintf("Vetting %s failed. Please try again later.", intent.Vendor))
				return
			}
			writeJSON(w, http.StatusOK, chatMessage{
				Role:        "assistant",
				Content:     formatReport(result.Report),
				ContentType: "report",
			})

		case "discover":
			shortlist, err := discoverer.Run(ctx, body.Content)
			if err != nil {
				zap.L().Error("chat discovery failed", zap.Error(err))
				writeChatError(w, "Vendor discovery failed. Please try again later.")
				return
			}
			payload, err := json.Marshal(shortlist)
			if err != nil {
				writeChatError(w, "Vendor discovery failed. Please try again later.")
				return
			}
			writeJSON(w, http.StatusOK, chatMessage{
				Role:        "assistant",
				Content:     string(payload),
				ContentType: "json",
			})

		default:
			var answer string
			if err := exec.Execute(ctx, fmt.Sprintf(assistInstruction, body.Content), task.TierLite, &answer); err != nil {
				zap.L().Error("chat assist failed", zap.Error(err))
				writeChatError(w, "I could not answer that. Please try again.")
				return
			}
			writeJSON(w, http.StatusOK, chatMessage{
				Role:        "assistant",
				Content:     answer,
				ContentType: "text",
			})
		}
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeChatError returns pipeline failures as assistant messages rather than
// HTTP errors, so chat front ends can display them inline.
func writeChatError(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusOK, chatMessage{
		Role:        "assistant",
		Content:     msg,
		ContentType: "text",
	})
}

// formatReport renders a synthesized report as display text.
func formatReport(report *model.SynthesizedReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Risk report: %s\n\n", report.Subject)
	b.WriteString(report.Findings)
	fmt.Fprintf(&b, "\n\nRisk score: %.1f\n", report.RiskScore)
	fmt.Fprintf(&b, "Recommended course of action: %s\n", report.CourseOfAction)
	if len(report.Citations) > 0 {
		b.WriteString("\nSources:\n")
		for _, c := range report.Citations {
			fmt.Fprintf(&b, "  %s\n", c)
		}
	}
	return b.String()
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the chat HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipelines(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           buildRouter(env.Executor, env.Vetting, env.Discovery),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			_ = srv.Shutdown(context.Background())
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
