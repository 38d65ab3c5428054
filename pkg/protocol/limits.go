package protocol

// Wire size limits. These bound single datagrams and the fragmentation of
// larger packets; the allocation limits in bitio.go bound decoded fields.
const (
	// ChecksumSize is the length of the datagram checksum prefix in bytes.
	ChecksumSize = 4

	// MaxDatagramSize is the largest datagram this package will seal.
	// It stays under the common 1500-byte Ethernet MTU with room for
	// IP/UDP headers so datagrams are not fragmented by the network.
	MaxDatagramSize = 1200

	// FragmentSize is the payload capacity of one reliable fragment.
	// Fragments carrying more are malformed.
	FragmentSize = 1000

	// MaxFragmentedSize is the largest packet EnsureSend accepts:
	// 65536 fragment ids of FragmentSize bytes each. The bound exists so
	// a header cannot request an absurd reassembly buffer.
	MaxFragmentedSize = FragmentSize * 0x10000
)
