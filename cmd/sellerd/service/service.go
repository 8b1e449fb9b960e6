package service

import (
	"context"
	"encoding/json"
	"errors"
	"io/ioutil"
	"net"
	"net/http"

	"github.com/google/uuid"
	"github.com/govmarket/market-core/cmd/sellerd/negotiator"
	"github.com/govmarket/market-core/negotiation"
	"github.com/govmarket/market-core/policyeval"
	"github.com/govmarket/market-core/transport"
	"github.com/govmarket/market-core/transport/resttransport"
	golog "github.com/ipfs/go-log/v2"
)

var log = golog.Logger("sellerd/service")

// Config defines params for Service configuration.
type Config struct {
	Listener  net.Listener
	Policy    string
	Auction   negotiator.Config
	Evaluator policyeval.Evaluator
	// Commit fires on accepted negotiations; may be nil.
	Commit negotiator.CommitFunc
}

// Service is the HTTP message surface wrapping a Negotiator: buyers POST wire
// messages to /v1/messages and register themselves under /v1/counterparties.
type Service struct {
	server    *http.Server
	directory *transport.Directory
	lib       *negotiator.Negotiator
}

// New returns a new Service listening on conf.Listener.
func New(conf Config) (*Service, error) {
	directory := transport.NewDirectory()
	dispatcher := negotiator.NewDispatcher(resttransport.New(directory))

	conf.Auction.Policy = conf.Policy
	lib := negotiator.New(conf.Evaluator, directory, dispatcher, conf.Commit, conf.Auction)

	s := &Service{
		directory: directory,
		lib:       lib,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/messages", s.handleMessage)
	mux.HandleFunc("/v1/counterparties", s.handleCounterparty)
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	s.server = &http.Server{Handler: mux}

	go func() {
		if err := s.server.Serve(conf.Listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("server error: %v", err)
		}
	}()

	log.Info("service started")
	return s, nil
}

// Close shuts the HTTP server down and drains in-flight negotiations.
func (s *Service) Close() error {
	if err := s.server.Shutdown(context.Background()); err != nil {
		return err
	}
	return s.lib.Close()
}

// Negotiator exposes the underlying negotiator.
func (s *Service) Negotiator() *negotiator.Negotiator {
	return s.lib
}

// Directory exposes the counterparty directory.
func (s *Service) Directory() *transport.Directory {
	return s.directory
}

// handleMessage decodes one wire message and routes it. Malformed payloads are
// dropped with a 400 and never touch negotiation state.
func (s *Service) handleMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body, err := ioutil.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "reading body", http.StatusBadRequest)
		return
	}

	msg, err := negotiation.DecodeMessage(body)
	if err != nil {
		log.Warnf("dropping message: %v", err)
		http.Error(w, "malformed message", http.StatusBadRequest)
		return
	}

	switch m := msg.(type) {
	case *negotiation.VoteOfferMessage:
		taskID := m.TaskID
		if taskID == "" {
			taskID = negotiation.TaskID(uuid.NewString())
		}
		// SubmitOffer can block for a full auction window; respond 202 and
		// let the verdict travel back over the transport.
		go func() {
			outcome, err := s.lib.SubmitOffer(context.Background(), taskID, m.From, m.Offer())
			if err != nil {
				log.Warnf("task %s: submit offer: %v", taskID, err)
				return
			}
			log.Debugf("task %s: outcome %s", taskID, outcome.Kind)
		}()
		w.WriteHeader(http.StatusAccepted)
	case *negotiation.CompetingOfferResponseMessage:
		s.lib.HandleCompetingOffer(m)
		w.WriteHeader(http.StatusAccepted)
	default:
		log.Warnf("dropping unroutable message type %T", m)
		http.Error(w, "message not routable to a seller", http.StatusBadRequest)
	}
}

type counterpartyRegistration struct {
	ID       negotiation.CounterpartyID `json:"id"`
	Endpoint string                     `json:"endpoint"`
}

// handleCounterparty registers or removes a buyer in the directory.
func (s *Service) handleCounterparty(w http.ResponseWriter, r *http.Request) {
	var reg counterpartyRegistration
	if err := json.NewDecoder(r.Body).Decode(&reg); err != nil || reg.ID == "" {
		http.Error(w, "bad registration", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodPost:
		s.directory.Register(reg.ID, reg.Endpoint)
		log.Infof("registered counterparty %s at %s", reg.ID, reg.Endpoint)
		w.WriteHeader(http.StatusOK)
	case http.MethodDelete:
		s.directory.Remove(reg.ID)
		log.Infof("removed counterparty %s", reg.ID)
		w.WriteHeader(http.StatusOK)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}
