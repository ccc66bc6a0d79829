// Package udpingest is the live syslog UDP listener (spec section 6.2):
// firewalls forward CONN/DEVICE syslog directly over UDP, one listener
// socket and one shared ingest.Ingestor across every source device (the
// Ingestor's own reconstructor expects a single caller, so the listener
// feeds it sequentially rather than forking reconstruction state per
// source).
//
// Grounded on the gravwell-gravwell SimpleRelay ingester's acceptorUDP/
// ListenUDP shape (the teacher has no UDP path of its own — it only tails
// files and Docker logs) for the listen-loop structure. Admission control
// against pkg/backpressure is this package's own addition: a UDP listener
// can't push back on the network the way a TCP accept loop can, so the only
// lever under load is dropping datagrams before they reach the parser.
package udpingest

import (
	"context"
	"net"

	"github.com/sirupsen/logrus"

	"netwallfa/internal/ingest"
	"netwallfa/internal/metrics"
	"netwallfa/internal/reconstruct"
)

// readBufferBytes bounds one UDP datagram read. Syslog messages are small;
// this comfortably covers a jumbo-frame worst case.
const readBufferBytes = 64 * 1024

// Admission is the subset of *pkg/backpressure.Manager the listener needs to
// decide whether to accept or drop an incoming datagram. Optional: a nil
// Admission means every datagram is accepted.
type Admission interface {
	ShouldReject() bool
}

// Listener reads syslog datagrams off a UDP socket, splits each into lines,
// and feeds them into a shared ingest.Ingestor.
type Listener struct {
	addr      string
	ingestor  *ingest.Ingestor
	admission Admission
	logger    *logrus.Logger

	conn *net.UDPConn
}

// New builds a Listener bound to addr (host:port) once Start is called.
// admission may be nil.
func New(addr string, ingestor *ingest.Ingestor, admission Admission, logger *logrus.Logger) *Listener {
	return &Listener{
		addr:      addr,
		ingestor:  ingestor,
		admission: admission,
		logger:    logger,
	}
}

// Start opens the UDP socket and begins serving. The caller runs this in its
// own goroutine; Start returns early only if the address cannot be resolved
// or bound, and otherwise blocks until ctx is canceled. Read errors are
// logged and the loop keeps reading.
func (l *Listener) Start(ctx context.Context) error {
	udpAddr, err := net.ResolveUDPAddr("udp", l.addr)
	if err != nil {
		return err
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return err
	}
	l.conn = conn
	l.logger.WithField("addr", l.addr).Info("udp syslog listener started")

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	buf := make([]byte, readBufferBytes)
	for {
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				l.logger.Info("udp syslog listener stopped")
				return nil
			}
			l.logger.WithError(err).Warn("udp syslog read failed")
			continue
		}
		if n == 0 {
			continue
		}
		if l.admission != nil && l.admission.ShouldReject() {
			metrics.RecordsIngestedTotal.WithLabelValues("udp_dropped").Inc()
			continue
		}
		l.handleDatagram(ctx, string(buf[:n]))
	}
}

// Stop closes the listening socket, unblocking any in-progress ReadFromUDP.
func (l *Listener) Stop() {
	if l.conn != nil {
		l.conn.Close()
	}
}

func (l *Listener) handleDatagram(ctx context.Context, payload string) {
	for _, line := range reconstruct.SplitLines(payload) {
		if err := l.ingestor.IngestLine(ctx, line); err != nil {
			l.logger.WithError(err).Debug("udp syslog record rejected")
		}
	}
}
