package domain

// Network identifies a deployment of the envelope contract (e.g. "mainnet", "testnet").
type Network string

const (
	NetworkMainnet Network = "mainnet"
	NetworkTestnet Network = "testnet"
	NetworkDevnet  Network = "devnet"
)

func (n Network) String() string {
	return string(n)
}
