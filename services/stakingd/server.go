package stakingd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"stakeledger/core/types"
	"stakeledger/native/staking"
)

const maxBodyBytes = 1 << 20

// Server exposes the processor over HTTP.
type Server struct {
	proc    *Processor
	auth    *Authenticator
	limiter *RateLimiter
	logger  *slog.Logger

	// RequestTimeout bounds every route except the event stream.
	RequestTimeout time.Duration
}

// NewServer wires the HTTP routes.
func NewServer(proc *Processor, auth *Authenticator, limiter *RateLimiter, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{proc: proc, auth: auth, limiter: limiter, logger: logger}
}

// Handler returns the instrumented router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(api chi.Router) {
		api.Use(s.limiter.Middleware)
		api.Get("/events", s.handleEventStream)
		api.Group(func(public chi.Router) {
			public.Use(s.timeout)
			public.Get("/config", s.handleConfig)
			public.Get("/stakers", s.handleListStakers)
			public.Get("/stakers/{address}", s.handleStaker)
			public.Get("/apy", s.handleAPY)
			public.Get("/history", s.handleHistory)
			public.Get("/snapshot", s.handleSnapshot)
		})
		api.Group(func(protected chi.Router) {
			protected.Use(s.timeout)
			protected.Use(s.auth.Middleware)
			protected.Use(s.limiter.Middleware)
			protected.Post("/execute/{action}", s.handleExecute)
		})
	})
	return otelhttp.NewHandler(r, "stakingd")
}

func (s *Server) timeout(next http.Handler) http.Handler {
	if s.RequestTimeout <= 0 {
		return next
	}
	return chimw.Timeout(s.RequestTimeout)(next)
}

type receiveRequest struct {
	Sender string          `json:"sender"`
	Amount string          `json:"amount"`
	Msg    json.RawMessage `json:"msg,omitempty"`
}

type updateConfigRequest struct {
	NewOwner *string `json:"new_owner"`
}

type updateConstantsRequest struct {
	DailyReward    string `json:"daily_reward"`
	APYPrefix      string `json:"apy_prefix"`
	RewardInterval uint64 `json:"reward_interval"`
}

type stakerSeedRequest struct {
	Address     string `json:"address"`
	Amount      string `json:"amount"`
	Reward      string `json:"reward"`
	LastAccrual uint64 `json:"last_time"`
}

type addStakersRequest struct {
	Stakers []stakerSeedRequest `json:"stakers"`
}

type removeStakerRequest struct {
	Address string `json:"address"`
}

type removeAllStakersRequest struct {
	StartAfter *string `json:"start_after"`
	Limit      *uint32 `json:"limit"`
}

type executeResponse struct {
	Action   string            `json:"action"`
	Event    *types.Event      `json:"event,omitempty"`
	Transfer *staking.Transfer `json:"transfer,omitempty"`
	Credited int               `json:"credited,omitempty"`
}

type apyResponse struct {
	APY *big.Int `json:"apy"`
}

type snapshotResponse struct {
	Digest         string   `json:"digest"`
	Stakers        int      `json:"stakers"`
	PoolStakeTotal *big.Int `json:"pool_stake_total"`
	PoolRewardHeld *big.Int `json:"pool_reward_held"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	caller, ok := CallerFromContext(r.Context())
	if !ok {
		s.writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "authentication required"})
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "read body"})
		return
	}
	msg, err := decodeMsg(chi.URLParam(r, "action"), body)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	resp, err := s.proc.Execute(r.Context(), caller, msg)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, executeResponse{
		Action:   resp.Action,
		Event:    resp.Event,
		Transfer: resp.Transfer,
		Credited: resp.Accrual.Credited,
	})
}

func (s *Server) handleConfig(w http.ResponseWriter, _ *http.Request) {
	cfg, err := s.proc.Config()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleStaker(w http.ResponseWriter, r *http.Request) {
	info, err := s.proc.Staker(chi.URLParam(r, "address"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleListStakers(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	var startAfter *string
	if raw := strings.TrimSpace(query.Get("start_after")); raw != "" {
		startAfter = &raw
	}
	var limit *uint32
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid limit"})
			return
		}
		value := uint32(parsed)
		limit = &value
	}
	list, err := s.proc.Stakers(startAfter, limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleAPY(w http.ResponseWriter, r *http.Request) {
	apy, err := s.proc.APY(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, apyResponse{APY: apy})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid limit"})
			return
		}
		limit = parsed
	}
	entries, err := s.proc.History(r.Context(), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, _ *http.Request) {
	snap, err := s.proc.Snapshot()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, snapshotResponse{
		Digest:         snap.DigestHex(),
		Stakers:        len(snap.Stakers),
		PoolStakeTotal: snap.Config.PoolStakeTotal,
		PoolRewardHeld: snap.Config.PoolRewardHeld,
	})
}

// decodeMsg maps a route action and JSON body onto a ledger message.
func decodeMsg(action string, body []byte) (staking.Msg, error) {
	decode := func(v any) error {
		if len(strings.TrimSpace(string(body))) == 0 {
			return nil
		}
		if err := json.Unmarshal(body, v); err != nil {
			return fmt.Errorf("decode %s request: %w", action, err)
		}
		return nil
	}
	switch action {
	case "receive":
		var req receiveRequest
		if err := decode(&req); err != nil {
			return nil, err
		}
		amount, err := parseAmount(req.Amount)
		if err != nil {
			return nil, fmt.Errorf("amount: %w", err)
		}
		return staking.ReceiveMsg{Sender: req.Sender, Amount: amount, Msg: []byte(req.Msg)}, nil
	case "claim":
		return staking.ClaimRewardMsg{}, nil
	case "unstake":
		return staking.UnstakeMsg{}, nil
	case "withdraw-stake":
		return staking.WithdrawStakeTokenMsg{}, nil
	case "withdraw-reward":
		return staking.WithdrawRewardTokenMsg{}, nil
	case "update-config":
		var req updateConfigRequest
		if err := decode(&req); err != nil {
			return nil, err
		}
		return staking.UpdateConfigMsg{NewOwner: req.NewOwner}, nil
	case "update-constants":
		var req updateConstantsRequest
		if err := decode(&req); err != nil {
			return nil, err
		}
		daily, err := parseAmount(req.DailyReward)
		if err != nil {
			return nil, fmt.Errorf("daily_reward: %w", err)
		}
		prefix := big.NewInt(0)
		if strings.TrimSpace(req.APYPrefix) != "" {
			if prefix, err = parseAmount(req.APYPrefix); err != nil {
				return nil, fmt.Errorf("apy_prefix: %w", err)
			}
		}
		return staking.UpdateConstantsMsg{DailyReward: daily, APYPrefix: prefix, RewardInterval: req.RewardInterval}, nil
	case "add-stakers":
		var req addStakersRequest
		if err := decode(&req); err != nil {
			return nil, err
		}
		msg := staking.AddStakersMsg{Stakers: make([]staking.StakerInfo, 0, len(req.Stakers))}
		for i, seed := range req.Stakers {
			amount, err := parseAmount(seed.Amount)
			if err != nil {
				return nil, fmt.Errorf("stakers[%d].amount: %w", i, err)
			}
			reward := big.NewInt(0)
			if strings.TrimSpace(seed.Reward) != "" {
				if reward, err = parseAmount(seed.Reward); err != nil {
					return nil, fmt.Errorf("stakers[%d].reward: %w", i, err)
				}
			}
			msg.Stakers = append(msg.Stakers, staking.StakerInfo{
				Address:     seed.Address,
				Amount:      amount,
				Reward:      reward,
				LastAccrual: seed.LastAccrual,
			})
		}
		return msg, nil
	case "remove-staker":
		var req removeStakerRequest
		if err := decode(&req); err != nil {
			return nil, err
		}
		return staking.RemoveStakerMsg{Address: req.Address}, nil
	case "remove-all-stakers":
		var req removeAllStakersRequest
		if err := decode(&req); err != nil {
			return nil, err
		}
		return staking.RemoveAllStakersMsg{StartAfter: req.StartAfter, Limit: req.Limit}, nil
	default:
		return nil, fmt.Errorf("%w: %q", staking.ErrUnknownMsg, action)
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrSettlement):
		return http.StatusBadGateway
	case errors.Is(err, staking.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, staking.ErrInvalidInput),
		errors.Is(err, staking.ErrInvalidAddress),
		errors.Is(err, staking.ErrUnacceptableToken),
		errors.Is(err, staking.ErrUnknownMsg):
		return http.StatusBadRequest
	case errors.Is(err, staking.ErrNoReward),
		errors.Is(err, staking.ErrNoStaked),
		errors.Is(err, staking.ErrInsufficientPoolReward),
		errors.Is(err, staking.ErrInsufficientPoolStake),
		errors.Is(err, staking.ErrNotInstantiated),
		errors.Is(err, staking.ErrAlreadyInstantiated),
		errors.Is(err, staking.ErrStrategyMismatch):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", slog.String("error", err.Error()))
	}
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
