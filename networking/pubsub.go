package networking

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"time"

	"github.com/golang/snappy"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	pb "github.com/libp2p/go-libp2p-pubsub/pb"
	"github.com/libp2p/go-libp2p/core/host"
)

const NetworkName = "ffgnet0"

// Topic format: /ffg/<network>/<type>/ssz_snappy
var (
	AttestationBatchTopic = "/ffg/" + NetworkName + "/attestation_batch/ssz_snappy"
	FinalityProofTopic    = "/ffg/" + NetworkName + "/finality_proof/ssz_snappy"
)

// Message domains for gossipsub message ID computation.
var (
	messageDomainInvalidSnappy = [4]byte{0x00, 0x00, 0x00, 0x00}
	messageDomainValidSnappy   = [4]byte{0x01, 0x00, 0x00, 0x00}
)

// NewGossipSub creates a gossipsub instance tuned for the finality topics.
func NewGossipSub(ctx context.Context, h host.Host) (*pubsub.PubSub, error) {
	gsParams := pubsub.DefaultGossipSubParams()
	gsParams.D = 8
	gsParams.Dlo = 6
	gsParams.Dhi = 12
	gsParams.Dlazy = 6
	gsParams.HeartbeatInterval = 700 * time.Millisecond
	gsParams.FanoutTTL = 60 * time.Second
	gsParams.HistoryLength = 6
	gsParams.HistoryGossip = 3

	opts := []pubsub.Option{
		pubsub.WithMessageIdFn(computePubsubMessageID),
		pubsub.WithGossipSubParams(gsParams),
		pubsub.WithSeenMessagesTTL(30 * time.Second),
		pubsub.WithMessageSignaturePolicy(pubsub.StrictNoSign),
		pubsub.WithFloodPublish(false),
	}

	return pubsub.NewGossipSub(ctx, h, opts...)
}

// computePubsubMessageID computes the 20-byte message ID for gossipsub
// deduplication. ID = SHA256(domain + len(topic) + topic + data)[:20]
func computePubsubMessageID(msg *pb.Message) string {
	var domain [4]byte
	var data []byte

	decoded, err := snappy.Decode(nil, msg.Data)
	if err == nil {
		domain = messageDomainValidSnappy
		data = decoded
	} else {
		domain = messageDomainInvalidSnappy
		data = msg.Data
	}

	topic := msg.GetTopic()
	topicBytes := []byte(topic)
	topicLen := make([]byte, 8)
	binary.LittleEndian.PutUint64(topicLen, uint64(len(topicBytes)))

	h := sha256.New()
	h.Write(domain[:])
	h.Write(topicLen)
	h.Write(topicBytes)
	h.Write(data)

	return string(h.Sum(nil)[:20])
}

// CompressMessage compresses data using snappy for gossipsub.
func CompressMessage(data []byte) []byte {
	return snappy.Encode(nil, data)
}

// DecompressMessage decompresses snappy-compressed data.
func DecompressMessage(data []byte) ([]byte, error) {
	return snappy.Decode(nil, data)
}
