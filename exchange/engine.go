package exchange

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	sphinx "github.com/lightningnetwork/lightning-onion"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/routing/route"

	"github.com/lightningnetwork/lnoffers/bolt12"
	"github.com/lightningnetwork/lnoffers/offers"
	"github.com/lightningnetwork/lnoffers/routing"
)

// DefaultRequestTimeout is how long we wait for an invoice reply before
// giving up on an exchange.
const DefaultRequestTimeout = 60 * time.Second

// pathIDLen is the length of the opaque path id carried to ourselves on
// the terminal hop of a reply path.
const pathIDLen = 16

// Config bundles the collaborators the exchange engine depends on.
type Config struct {
	// Gossip is the channel graph oracle used for pathfinding.
	Gossip routing.Gossip

	// Transport sends onion messages and feeds inbound ones back via
	// HandleOnionMessage.
	Transport routing.Transport

	// Manager decodes offers and builds invoice requests.
	Manager *offers.Manager

	// Self is our own node id as it appears in gossip.
	Self route.Vertex

	// Clock is the time source, injectable for tests.
	Clock clock.Clock

	// RequestTimeout bounds how long a request stays outstanding.
	// Zero means DefaultRequestTimeout.
	RequestTimeout time.Duration

	// EntropySource is the randomness source for path ids. Nil means
	// crypto/rand.
	EntropySource io.Reader
}

// fetchOutcome resolves one exchange, with exactly one of result or err
// set.
type fetchOutcome struct {
	result *FetchResult
	err    error
}

// outstandingRequest is an exchange awaiting its reply, keyed in the
// engine's table by the serialized reply blinding.
type outstandingRequest struct {
	blinding [33]byte
	offer    *bolt12.Offer
	invreq   *bolt12.InvoiceRequest
	deadline time.Time

	// resultChan resumes the initiating call. Buffered so the event
	// loop never blocks resolving an abandoned request.
	resultChan chan *fetchOutcome
}

// resolve delivers the outcome without ever blocking the loop.
func (o *outstandingRequest) resolve(outcome *fetchOutcome) {
	select {
	case o.resultChan <- outcome:
	default:
	}
}

// sendRequest asks the event loop to register an exchange and emit its
// onion message.
type sendRequest struct {
	entry     *outstandingRequest
	hops      []routing.Hop
	replyPath *sphinx.BlindedPath
	errChan   chan error
}

// Engine is the offer-to-invoice exchange engine. A single event loop
// goroutine owns the outstanding-request table; sends, inbound
// messages, cancellations and deadlines are all funneled through it.
type Engine struct {
	cfg Config

	started sync.Once
	stopped sync.Once
	quit    chan struct{}
	wg      sync.WaitGroup

	sendRequests chan *sendRequest
	inbound      chan *routing.InboundMessage
	cancels      chan [33]byte
}

// NewEngine validates the config and creates an engine.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Gossip == nil {
		return nil, errors.New("exchange: gossip required")
	}
	if cfg.Transport == nil {
		return nil, errors.New("exchange: transport required")
	}
	if cfg.Manager == nil {
		return nil, errors.New("exchange: offer manager required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.NewDefaultClock()
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.EntropySource == nil {
		cfg.EntropySource = rand.Reader
	}

	return &Engine{
		cfg:          cfg,
		quit:         make(chan struct{}),
		sendRequests: make(chan *sendRequest),
		inbound:      make(chan *routing.InboundMessage),
		cancels:      make(chan [33]byte),
	}, nil
}

// Start launches the event loop.
func (e *Engine) Start() error {
	e.started.Do(func() {
		log.Info("Exchange engine starting")

		e.wg.Add(1)
		go e.eventLoop()
	})

	return nil
}

// Stop shuts the event loop down, failing all outstanding exchanges.
func (e *Engine) Stop() error {
	e.stopped.Do(func() {
		log.Info("Exchange engine stopping")

		close(e.quit)
		e.wg.Wait()
	})

	return nil
}

// FetchInvoice runs one full exchange: decode and check the offer,
// build the invoice request, route it to the offering node over an
// onion message with a blinded reply path, and wait for the validated
// invoice, a structured remote failure, or the deadline.
func (e *Engine) FetchInvoice(ctx context.Context, offerString string,
	params offers.RequestParams) (*FetchResult, error) {

	offer, err := e.cfg.Manager.DecodeOffer(offerString)
	if err != nil {
		return nil, err
	}

	invreq, err := e.cfg.Manager.BuildInvoiceRequest(offer, params)
	if err != nil {
		return nil, err
	}

	send, err := e.prepareSend(offer, invreq)
	if err != nil {
		return nil, err
	}

	// Hand the request to the event loop, which registers it before
	// emitting the message so the reply can never race the table.
	select {
	case e.sendRequests <- send:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-e.quit:
		return nil, ErrEngineShutdown
	}

	select {
	case err := <-send.errChan:
		if err != nil {
			return nil, err
		}
	case <-e.quit:
		return nil, ErrEngineShutdown
	}

	log.Debugf("Awaiting invoice reply for offer %v", invreq.OfferID)

	select {
	case outcome := <-send.entry.resultChan:
		return outcome.result, outcome.err

	case <-ctx.Done():
		// Cancellation is just removal from the table; a late
		// reply then drops as unmatched traffic.
		select {
		case e.cancels <- send.entry.blinding:
		case <-e.quit:
		}

		return nil, ctx.Err()

	case <-e.quit:
		return nil, ErrEngineShutdown
	}
}

// prepareSend finds a route to the offering node and assembles the
// onion message hops and blinded reply path for one exchange.
func (e *Engine) prepareSend(offer *bolt12.Offer,
	invreq *bolt12.InvoiceRequest) (*sendRequest, error) {

	var xonly [32]byte
	copy(xonly[:], schnorr.SerializePubKey(offer.NodeID))

	destNode, err := e.cfg.Gossip.LookupNodeByXOnly(xonly)
	if err != nil {
		return nil, routing.ErrUnknownDestination
	}

	forward, err := routing.FindOnionMessageRoute(
		e.cfg.Gossip, e.cfg.Self, destNode.PubKey,
	)
	switch {
	case errors.Is(err, routing.ErrRouteNotFound):
		return nil, offers.NewError(
			offers.CodeOfferRouteNotFound, err,
		)

	case err != nil:
		return nil, err
	}

	sessionKey, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, err
	}

	pathID := make([]byte, pathIDLen)
	if _, err := e.cfg.EntropySource.Read(pathID); err != nil {
		return nil, fmt.Errorf("path id entropy: %w", err)
	}

	replyPath, err := routing.BuildReplyPath(
		sessionKey, routing.ReplyRoute(e.cfg.Self, forward), pathID,
	)
	if err != nil {
		return nil, err
	}

	payload, err := invreq.Encode()
	if err != nil {
		return nil, err
	}

	hops := make([]routing.Hop, len(forward))
	for i, hop := range forward {
		hops[i] = routing.Hop{NodeID: hop}
	}
	hops[len(hops)-1].Payload = payload

	entry := &outstandingRequest{
		offer:      offer,
		invreq:     invreq,
		resultChan: make(chan *fetchOutcome, 1),
	}
	copy(
		entry.blinding[:],
		replyPath.ReplyBlinding.SerializeCompressed(),
	)

	return &sendRequest{
		entry:     entry,
		hops:      hops,
		replyPath: replyPath.Path,
		errChan:   make(chan error, 1),
	}, nil
}

// HandleOnionMessage is the inbound hook the transport delivers blinded
// onion messages to.
func (e *Engine) HandleOnionMessage(msg *routing.InboundMessage) error {
	select {
	case e.inbound <- msg:
		return nil
	case <-e.quit:
		return ErrEngineShutdown
	}
}

// eventLoop is the single goroutine owning the outstanding table. All
// state transitions of an exchange happen here.
func (e *Engine) eventLoop() {
	defer e.wg.Done()

	outstanding := make(map[[33]byte]*outstandingRequest)

	for {
		// Arm a timer for the nearest deadline, if any.
		var timerChan <-chan time.Time
		if next, ok := nearestDeadline(outstanding); ok {
			delay := next.Sub(e.cfg.Clock.Now())
			timerChan = e.cfg.Clock.TickAfter(delay)
		}

		select {
		case send := <-e.sendRequests:
			e.handleSend(outstanding, send)

		case msg := <-e.inbound:
			e.handleInbound(outstanding, msg)

		case <-timerChan:
			e.expireRequests(outstanding)

		case blinding := <-e.cancels:
			delete(outstanding, blinding)

		case <-e.quit:
			for key, entry := range outstanding {
				entry.resolve(&fetchOutcome{
					err: ErrEngineShutdown,
				})
				delete(outstanding, key)
			}

			return
		}
	}
}

// nearestDeadline returns the earliest deadline among outstanding
// requests.
func nearestDeadline(
	outstanding map[[33]byte]*outstandingRequest) (time.Time, bool) {

	var (
		nearest time.Time
		found   bool
	)
	for _, entry := range outstanding {
		if !found || entry.deadline.Before(nearest) {
			nearest = entry.deadline
			found = true
		}
	}

	return nearest, found
}

// handleSend registers a new outstanding request and emits its onion
// message.
func (e *Engine) handleSend(outstanding map[[33]byte]*outstandingRequest,
	send *sendRequest) {

	entry := send.entry

	// At most one request may be in flight per reply blinding.
	if _, ok := outstanding[entry.blinding]; ok {
		send.errChan <- ErrDuplicateBlinding
		return
	}

	entry.deadline = e.cfg.Clock.Now().Add(e.cfg.RequestTimeout)
	outstanding[entry.blinding] = entry

	err := e.cfg.Transport.SendOnionMessage(send.hops, send.replyPath)
	if err != nil {
		delete(outstanding, entry.blinding)
		send.errChan <- err
		return
	}

	log.Debugf("Sent invoice_request, awaiting reply on blinding %x",
		entry.blinding)

	send.errChan <- nil
}

// handleInbound matches an inbound onion message against the table and
// drives the matched exchange to a terminal state.
func (e *Engine) handleInbound(
	outstanding map[[33]byte]*outstandingRequest,
	msg *routing.InboundMessage) {

	// Messages without a blinding cannot be replies of ours.
	if msg.BlindingIn == nil {
		return
	}

	var key [33]byte
	copy(key[:], msg.BlindingIn.SerializeCompressed())

	entry, ok := outstanding[key]
	if !ok {
		log.Tracef("No match for onion message on blinding %x", key)
		return
	}

	// From here on the reply is genuine, so the exchange terminates
	// one way or the other.
	delete(outstanding, key)
	entry.resolve(e.processReply(entry, msg))
}

// processReply turns a matched reply into the exchange's outcome.
func (e *Engine) processReply(entry *outstandingRequest,
	msg *routing.InboundMessage) *fetchOutcome {

	badReply := func(cause error) *fetchOutcome {
		return &fetchOutcome{
			err: offers.NewError(
				offers.CodeOfferBadInvreqReply, cause,
			),
		}
	}

	if msg.InvoiceError != nil {
		remoteErr := &RemoteInvoiceError{}

		// Decode is best-effort: an undecodable error still fails
		// the exchange, just without details.
		decoded, err := bolt12.DecodeInvoiceError(msg.InvoiceError)
		if err != nil {
			log.Debugf("Invalid invoice_error: %v", err)
		} else {
			remoteErr.ErroneousField = decoded.ErroneousField
			remoteErr.SuggestedValue = decoded.SuggestedValue
			remoteErr.Message = decoded.Message
		}

		return badReply(remoteErr)
	}

	if msg.Invoice == nil {
		return badReply(errors.New(
			"neither invoice nor invoice_error in reply",
		))
	}

	inv, err := validateInvoice(entry.offer, entry.invreq, msg.Invoice)
	if err != nil {
		log.Debugf("Failed invoice: %v", err)
		return badReply(err)
	}

	expected, err := expectedAmount(entry.offer, entry.invreq)
	if err != nil {
		return badReply(err)
	}

	encoded, err := inv.String()
	if err != nil {
		return &fetchOutcome{err: err}
	}

	return &fetchOutcome{
		result: &FetchResult{
			Invoice: encoded,
			Changes: computeChanges(entry.offer, inv, expected),
			NextPeriod: nextPeriod(
				entry.offer, entry.invreq, inv,
			),
		},
	}
}

// expireRequests fails every outstanding request whose deadline has
// passed.
func (e *Engine) expireRequests(
	outstanding map[[33]byte]*outstandingRequest) {

	now := e.cfg.Clock.Now()
	for key, entry := range outstanding {
		if entry.deadline.After(now) {
			continue
		}

		log.Debugf("Request on blinding %x timed out", key)

		delete(outstanding, key)
		entry.resolve(&fetchOutcome{err: ErrTimeout})
	}
}
