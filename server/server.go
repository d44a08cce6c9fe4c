package server

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/tmc/langchaingo/llms"

	"github.com/abclabs/loanassist/internal/models"
	"github.com/abclabs/loanassist/internal/types"
	"github.com/abclabs/loanassist/pkg/chat"
	"github.com/abclabs/loanassist/pkg/memory"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Be careful with this in production
	},
}

type Message struct {
	Type    string   `json:"type"`
	Content string   `json:"content"`
	Sources []string `json:"sources,omitempty"`
	Turns   int      `json:"turns,omitempty"`
}

// Server exposes the assistant over WebSocket. The retriever and chat model
// are shared read-only across connections; each connection owns its session.
type Server struct {
	retriever    types.Retriever
	model        llms.Model
	engineConfig chat.EngineConfig
}

func New(r types.Retriever, model llms.Model, engineConfig chat.EngineConfig) *Server {
	return &Server{
		retriever:    r,
		model:        model,
		engineConfig: engineConfig,
	}
}

// session is one chat conversation: an engine bound to its own memory buffer.
type session struct {
	engine *chat.Engine
}

func (s *Server) newSession() (*session, error) {
	engine, err := chat.NewEngine(s.retriever, s.model, memory.NewBuffer(), s.engineConfig)
	if err != nil {
		return nil, err
	}
	return &session{engine: engine}, nil
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	sess, err := s.newSession()
	if err != nil {
		log.Printf("Failed to create session: %v", err)
		return
	}

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("Error reading message: %v", err)
			}
			break
		}

		switch msg.Type {
		case "question":
			s.handleQuestion(r.Context(), conn, sess, msg.Content)
		case "clear":
			sess.engine.Memory().Clear()
			sendMessage(conn, Message{Type: "status", Content: "history cleared"})
		default:
			sendMessage(conn, Message{Type: "error", Content: fmt.Sprintf("unknown message type %q", msg.Type)})
		}
	}
}

func (s *Server) handleQuestion(ctx context.Context, conn *websocket.Conn, sess *session, question string) {
	result, err := sess.engine.Answer(ctx, question)
	if err != nil {
		sendMessage(conn, Message{Type: "error", Content: "Sorry, I could not answer that right now."})
		log.Printf("answer failed: %v", err)
		return
	}

	sendMessage(conn, Message{
		Type:    "answer",
		Content: result.Text,
		Sources: sourceList(result.Chunks),
		Turns:   sess.engine.Memory().Len(),
	})
}

func sourceList(chunks []models.Chunk) []string {
	var sources []string
	seen := make(map[string]bool)
	for _, chunk := range chunks {
		if !seen[chunk.Source] {
			sources = append(sources, chunk.Source)
			seen[chunk.Source] = true
		}
	}
	return sources
}

func sendMessage(conn *websocket.Conn, msg Message) {
	if err := conn.WriteJSON(msg); err != nil {
		log.Printf("Error sending message: %v", err)
	}
}

// Run serves the WebSocket chat surface until the listener fails.
func (s *Server) Run(port string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	log.Printf("Starting WebSocket server on port %s", port)
	return http.ListenAndServe(":"+port, mux)
}
