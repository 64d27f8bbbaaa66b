package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/xela07ax/roby-guard/internal/domain"
	"github.com/xela07ax/roby-guard/internal/engine"
	"github.com/xela07ax/roby-guard/internal/infra/auth"
)

const (
	maxBodySize     = 64 * 1024
	defaultJournal  = 50
	maxJournalLimit = 500
)

// accountView: запись программы и ее декодированное содержимое.
type accountView struct {
	Key     domain.Pubkey `json:"key"`
	Size    int           `json:"size"`
	Deposit uint64        `json:"deposit"`
	Record  any           `json:"record"`
}

type allocateRequest struct {
	Key     domain.Pubkey `json:"key"`
	Size    int           `json:"size"`
	Deposit *uint64       `json:"deposit,omitempty"` // по умолчанию минимальный освобождающий
}

type errorBody struct {
	Error string  `json:"error"`
	Kind  string  `json:"kind,omitempty"`
	Code  *uint32 `json:"code,omitempty"`
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	resp, err := s.deps.Issuer.Login(req.Username, req.Password)
	if err != nil {
		// не уточняем, что именно неверно (логин или пароль) для защиты от перебора
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) submit(w http.ResponseWriter, r *http.Request) {
	s.transaction(w, r, s.deps.Ledger.Submit)
}

func (s *Server) simulate(w http.ResponseWriter, r *http.Request) {
	s.transaction(w, r, s.deps.Ledger.Simulate)
}

// transaction принимает CBOR транзакцию и отдает JSON результат.
func (s *Server) transaction(w http.ResponseWriter, r *http.Request, run func(ctx context.Context, tx *engine.Transaction) (*engine.Result, error)) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize+1))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if len(body) > maxBodySize {
		http.Error(w, "transaction too large", http.StatusRequestEntityTooLarge)
		return
	}

	tx, err := engine.DecodeTransaction(body)
	if err != nil {
		s.writeError(w, err)
		return
	}

	res, err := run(r.Context(), tx)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) getRobot(w http.ResponseWriter, r *http.Request) {
	s.account(w, r, func(data []byte) (any, error) { return domain.UnpackRobot(data) })
}

func (s *Server) getCredential(w http.ResponseWriter, r *http.Request) {
	s.account(w, r, func(data []byte) (any, error) { return domain.UnpackCredential(data) })
}

func (s *Server) getCommandLog(w http.ResponseWriter, r *http.Request) {
	s.account(w, r, func(data []byte) (any, error) { return domain.UnpackCommandLog(data) })
}

func (s *Server) account(w http.ResponseWriter, r *http.Request, decode func([]byte) (any, error)) {
	key, ok := keyParam(w, r)
	if !ok {
		return
	}

	rec, err := s.deps.Ledger.Account(r.Context(), key)
	if err != nil {
		s.writeError(w, err)
		return
	}

	view, err := decode(rec.Data)
	if err != nil {
		// запись существует, но это слот другого типа
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: err.Error(), Kind: string(engine.KindProgram)})
		return
	}

	writeJSON(w, http.StatusOK, accountView{Key: rec.Key, Size: len(rec.Data), Deposit: rec.Deposit, Record: view})
}

func (s *Server) robotJournal(w http.ResponseWriter, r *http.Request) {
	if s.deps.Journal == nil {
		http.Error(w, "journal is not configured", http.StatusNotImplemented)
		return
	}
	key, ok := keyParam(w, r)
	if !ok {
		return
	}

	limit := defaultJournal
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > maxJournalLimit {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	events, err := s.deps.Journal.Recent(r.Context(), key.String(), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) listStopped(w http.ResponseWriter, r *http.Request) {
	if s.deps.Stops == nil {
		http.Error(w, "emergency stop registry is not shared", http.StatusNotImplemented)
		return
	}
	ids, err := s.deps.Stops.Members(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"stopped": ids})
}

func (s *Server) allocate(w http.ResponseWriter, r *http.Request) {
	var req allocateRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	deposit := s.deps.Ledger.DepositFor(req.Size)
	if req.Deposit != nil {
		deposit = *req.Deposit
	}

	if err := s.deps.Ledger.Allocate(r.Context(), req.Key, req.Size, deposit); err != nil {
		s.writeError(w, err)
		return
	}

	if claims, ok := auth.ClaimsFromContext(r.Context()); ok {
		s.logger.Info("slot allocated via api", zap.String("user", claims.UserID), zap.Stringer("key", req.Key))
	}
	writeJSON(w, http.StatusCreated, accountView{Key: req.Key, Size: req.Size, Deposit: deposit})
}

func keyParam(w http.ResponseWriter, r *http.Request) (domain.Pubkey, bool) {
	key, err := domain.ParsePubkey(chi.URLParam(r, "key"))
	if err != nil {
		http.Error(w, "invalid key", http.StatusBadRequest)
		return domain.Pubkey{}, false
	}
	return key, true
}

// writeError переводит класс ошибки шлюза в HTTP статус.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	kind := engine.Classify(err)
	body := errorBody{Error: err.Error(), Kind: string(kind)}
	if code, ok := domain.CodeOf(err); ok {
		body.Code = &code
	}

	status := statusFor(kind)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Error(err))
		body.Error = "internal error"
	}
	writeJSON(w, status, body)
}

func statusFor(kind engine.ErrorKind) int {
	switch kind {
	case engine.KindProgram, engine.KindStopped:
		return http.StatusUnprocessableEntity
	case engine.KindMalformed, engine.KindReadOnly:
		return http.StatusBadRequest
	case engine.KindSignature:
		return http.StatusUnauthorized
	case engine.KindExpired, engine.KindConflict:
		return http.StatusConflict
	case engine.KindNotFound:
		return http.StatusNotFound
	case engine.KindUnavailable:
		return http.StatusServiceUnavailable
	case engine.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
