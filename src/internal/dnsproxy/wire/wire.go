// Package wire converts between raw DNS datagrams and the query/response
// values the proxy works with.
package wire

import (
	"fmt"
	"net"
	"net/netip"
	"strings"

	"github.com/dnsdivert/dnsdivert/src/internal/errors"
	"github.com/miekg/dns"
)

const (
	// MaxNameLength is the maximum encoded length of a domain name in octets.
	MaxNameLength = 255

	// DefaultAnswerTTL is the TTL used for synthesized answers.
	DefaultAnswerTTL uint32 = 60
)

// Question is a single entry of the question section.
type Question struct {
	// Name is lowercased without the trailing dot; used for policy and cache lookups.
	Name string
	// WireName is the name as it appeared in the request, echoed back in answers.
	WireName string
	Type     uint16
	Class    uint16
}

// Query is a decoded DNS request. It is never mutated after Decode returns.
type Query struct {
	ID               uint16
	Opcode           int
	RecursionDesired bool
	Questions        []Question

	msg *dns.Msg
}

// First returns the first question. Decode guarantees at least one.
func (q *Query) First() Question {
	return q.Questions[0]
}

// String returns "name TYPE" of the first question, for logging.
func (q *Query) String() string {
	if len(q.Questions) == 0 {
		return "unknown"
	}
	first := q.Questions[0]
	return fmt.Sprintf("%s %s", first.Name, dns.TypeToString[first.Type])
}

// Decode parses a raw datagram into a Query.
func Decode(b []byte) (*Query, error) {
	msg := new(dns.Msg)
	if err := msg.Unpack(b); err != nil {
		return nil, errors.NewMalformedPacketError("failed to unpack message", err)
	}

	if msg.Response {
		return nil, errors.NewMalformedPacketError("QR bit set in query", nil)
	}
	if len(msg.Question) == 0 {
		return nil, errors.NewMalformedPacketError("question count is zero", nil)
	}

	q := &Query{
		ID:               msg.Id,
		Opcode:           msg.Opcode,
		RecursionDesired: msg.RecursionDesired,
		Questions:        make([]Question, 0, len(msg.Question)),
		msg:              msg,
	}

	for _, question := range msg.Question {
		if l := encodedNameLength(question.Name); l > MaxNameLength {
			return nil, errors.NewMalformedPacketError(fmt.Sprintf("name is %d octets long", l), nil)
		}
		q.Questions = append(q.Questions, Question{
			Name:     NormalizeName(question.Name),
			WireName: question.Name,
			Type:     question.Qtype,
			Class:    question.Qclass,
		})
	}

	return q, nil
}

// Encode builds a NOERROR reply for q. When answer is a valid IPv4 address and the
// first question asks for A/IN, the reply carries exactly one A record with the given TTL.
func Encode(q *Query, answer netip.Addr, ttl uint32) ([]byte, error) {
	resp := reply(q, dns.RcodeSuccess)

	first := q.First()
	if answer.Is4() && first.Type == dns.TypeA && first.Class == dns.ClassINET {
		resp.Answer = append(resp.Answer, &dns.A{
			Hdr: dns.RR_Header{
				Name:   first.WireName,
				Rrtype: dns.TypeA,
				Class:  dns.ClassINET,
				Ttl:    ttl,
			},
			A: net.IP(answer.AsSlice()),
		})
	}

	return pack(resp)
}

// EncodeFailure builds an answerless reply with the given RCODE
// (dns.RcodeServerFailure or dns.RcodeNameError).
func EncodeFailure(q *Query, rcode int) ([]byte, error) {
	return pack(reply(q, rcode))
}

// EncodeQuery builds a recursive A/IN query for name.
func EncodeQuery(name string) *dns.Msg {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(name), dns.TypeA)
	m.RecursionDesired = true
	return m
}

// NormalizeName lowercases a name and removes the trailing dot.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSuffix(name, "."))
}

func reply(q *Query, rcode int) *dns.Msg {
	resp := new(dns.Msg)
	resp.SetRcode(q.msg, rcode)
	// SetReply keeps only the first question; the reply echoes all of them verbatim.
	resp.Question = append([]dns.Question(nil), q.msg.Question...)
	resp.RecursionAvailable = true
	return resp
}

func pack(m *dns.Msg) ([]byte, error) {
	b, err := m.Pack()
	if err != nil {
		return nil, errors.NewInternalError("failed to pack response", err)
	}
	return b, nil
}

func encodedNameLength(name string) int {
	if name == "." || name == "" {
		return 1
	}
	n := 1
	for _, label := range dns.SplitDomainName(name) {
		n += len(label) + 1
	}
	return n
}
