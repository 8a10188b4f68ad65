package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"connectrpc.com/connect"
	"github.com/rs/zerolog/log"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/mcdev12/wordparty/go/internal/game/phasetimer"
)

// ServiceName is the fully-qualified name of the game backend service.
const ServiceName = "wordparty.v1.GameService"

const (
	AdvancePhaseProcedure = "/" + ServiceName + "/AdvancePhase"
	SubmitPhraseProcedure = "/" + ServiceName + "/SubmitPhrase"
	CastVoteProcedure     = "/" + ServiceName + "/CastVote"
)

var (
	ErrInvalidArgument      = errors.New("invalid argument")
	ErrPhaseAlreadyAdvanced = errors.New("phase already advanced")
	ErrRejected             = errors.New("rejected by backend")
)

// Client is the set of backend writes a room session performs.
type Client interface {
	AdvancePhase(ctx context.Context, req phasetimer.AdvanceRequest) error
	SubmitPhrase(ctx context.Context, roomID, userID, phrase string) error
	CastVote(ctx context.Context, roomID, userID, votedForID string) error
}

// Config holds backend connection settings.
type Config struct {
	BaseURL   string
	AuthToken string
	Timeout   time.Duration
	UseGRPC   bool
}

// ConnectClient calls the game backend over connect.
type ConnectClient struct {
	advance *connect.Client[structpb.Struct, emptypb.Empty]
	submit  *connect.Client[structpb.Struct, emptypb.Empty]
	vote    *connect.Client[structpb.Struct, emptypb.Empty]
}

// NewConnectClient builds a client for cfg.BaseURL. A nil httpClient gets
// one with cfg.Timeout.
func NewConnectClient(httpClient connect.HTTPClient, cfg Config) *ConnectClient {
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")

	opts := []connect.ClientOption{
		connect.WithInterceptors(authInterceptor(cfg.AuthToken)),
	}
	if cfg.UseGRPC {
		opts = append(opts, connect.WithGRPC())
	}

	return &ConnectClient{
		advance: connect.NewClient[structpb.Struct, emptypb.Empty](httpClient, baseURL+AdvancePhaseProcedure, opts...),
		submit:  connect.NewClient[structpb.Struct, emptypb.Empty](httpClient, baseURL+SubmitPhraseProcedure, opts...),
		vote:    connect.NewClient[structpb.Struct, emptypb.Empty](httpClient, baseURL+CastVoteProcedure, opts...),
	}
}

func authInterceptor(token string) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			if token != "" && req.Spec().IsClient {
				req.Header().Set("Authorization", "Bearer "+token)
			}
			return next(ctx, req)
		}
	}
}

// AdvancePhase asks the backend to end the phase identified by
// req.PhaseToken. A phase that was already advanced counts as success.
func (c *ConnectClient) AdvancePhase(ctx context.Context, req phasetimer.AdvanceRequest) error {
	if req.RoomID == "" || req.PhaseToken == "" {
		return fmt.Errorf("advance phase: %w: room id and phase token are required", ErrInvalidArgument)
	}

	msg, err := structpb.NewStruct(map[string]any{
		"roomId":     req.RoomID,
		"phaseToken": req.PhaseToken,
		"round":      req.Round,
		"phase":      string(req.Phase),
	})
	if err != nil {
		return fmt.Errorf("build advance request: %w", err)
	}

	_, err = c.advance.CallUnary(ctx, connect.NewRequest(msg))
	err = mapError("advance phase", err, true)
	if errors.Is(err, ErrPhaseAlreadyAdvanced) {
		log.Debug().Str("room_id", req.RoomID).Str("phase_token", req.PhaseToken).Msg("phase already advanced by another client")
		return nil
	}
	return err
}

// SubmitPhrase records userID's phrase for the current round.
func (c *ConnectClient) SubmitPhrase(ctx context.Context, roomID, userID, phrase string) error {
	phrase = strings.TrimSpace(phrase)
	if roomID == "" || userID == "" || phrase == "" {
		return fmt.Errorf("submit phrase: %w: room, user and phrase are required", ErrInvalidArgument)
	}

	msg, err := structpb.NewStruct(map[string]any{
		"roomId": roomID,
		"userId": userID,
		"phrase": phrase,
	})
	if err != nil {
		return fmt.Errorf("build submit request: %w", err)
	}

	_, err = c.submit.CallUnary(ctx, connect.NewRequest(msg))
	return mapError("submit phrase", err, false)
}

// CastVote records userID's vote for votedForID's phrase.
func (c *ConnectClient) CastVote(ctx context.Context, roomID, userID, votedForID string) error {
	if roomID == "" || userID == "" || votedForID == "" {
		return fmt.Errorf("cast vote: %w: room, voter and target are required", ErrInvalidArgument)
	}

	msg, err := structpb.NewStruct(map[string]any{
		"roomId":   roomID,
		"userId":   userID,
		"votedFor": votedForID,
	})
	if err != nil {
		return fmt.Errorf("build vote request: %w", err)
	}

	_, err = c.vote.CallUnary(ctx, connect.NewRequest(msg))
	return mapError("cast vote", err, false)
}

func mapError(op string, err error, advancing bool) error {
	if err == nil {
		return nil
	}
	switch connect.CodeOf(err) {
	case connect.CodeAlreadyExists, connect.CodeFailedPrecondition:
		if advancing {
			return fmt.Errorf("%s: %w: %w", op, ErrPhaseAlreadyAdvanced, err)
		}
		return fmt.Errorf("%s: %w: %w", op, ErrRejected, err)
	case connect.CodeInvalidArgument:
		return fmt.Errorf("%s: %w: %w", op, ErrInvalidArgument, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
