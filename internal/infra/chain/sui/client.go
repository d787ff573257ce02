package sui

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/vietddude/envelope-indexer/internal/infra/rpc/provider"
	"github.com/vietddude/envelope-indexer/internal/infra/rpc/routing"
)

var (
	// ErrObjectNotFound is returned when the node has no live object for the id.
	ErrObjectNotFound = errors.New("object not found")

	// ErrVersionNotFound is returned when the node cannot serve an object at
	// the requested version.
	ErrVersionNotFound = errors.New("object version not found")

	// ErrTransactionNotFound is returned when the node does not know the digest.
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrWrongObjectType is returned when an object is not a Move object of the
	// expected module.
	ErrWrongObjectType = errors.New("unexpected object type")

	// ErrNoTypeParam is returned when a type string has no generic parameter.
	ErrNoTypeParam = errors.New("type has no generic parameter")
)

// Client is a typed JSON-RPC client for a Sui fullnode.
type Client struct {
	provider provider.RPCProvider
	retry    routing.RetryConfig
	log      *slog.Logger
}

// NewClient creates a new Sui client. A zero retry config performs a single
// attempt per call.
func NewClient(p provider.RPCProvider, retry routing.RetryConfig) *Client {
	return &Client{
		provider: p,
		retry:    retry,
		log:      slog.Default().With("component", "sui_client", "provider", p.GetName()),
	}
}

// Provider exposes the underlying provider for health reporting.
func (c *Client) Provider() provider.RPCProvider {
	return c.provider
}

func (c *Client) call(ctx context.Context, method string, params []any, out any) error {
	raw, err := routing.CallWithRetry(ctx, c.provider, method, params, c.retry)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s result: %w", method, err)
	}
	return nil
}

func (c *Client) getObject(ctx context.Context, objectID string) (*ObjectResponse, error) {
	opts := map[string]bool{
		"showType":                true,
		"showContent":             true,
		"showOwner":               true,
		"showPreviousTransaction": true,
	}
	var resp ObjectResponse
	if err := c.call(ctx, "sui_getObject", []any{objectID, opts}, &resp); err != nil {
		return nil, fmt.Errorf("failed to get object %s: %w", objectID, err)
	}
	return &resp, nil
}

// GetObject fetches the live state of an object.
func (c *Client) GetObject(ctx context.Context, objectID string) (*ObjectData, error) {
	resp, err := c.getObject(ctx, objectID)
	if err != nil {
		return nil, err
	}
	if resp.Data == nil {
		return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, objectID)
	}
	if resp.Data.Type == "" && resp.Data.Content != nil {
		resp.Data.Type = resp.Data.Content.Type
	}
	return resp.Data, nil
}

// GetPastObject fetches an object as it was at the given version.
func (c *Client) GetPastObject(ctx context.Context, objectID string, version int64) (*ObjectData, error) {
	opts := map[string]bool{
		"showType":                true,
		"showPreviousTransaction": true,
	}
	var resp PastObjectResponse
	if err := c.call(ctx, "sui_tryGetPastObject", []any{objectID, version, opts}, &resp); err != nil {
		return nil, fmt.Errorf("failed to get object %s at version %d: %w", objectID, version, err)
	}
	if resp.Status != PastObjectVersionFound {
		return nil, fmt.Errorf("%w: %s@%d (%s)", ErrVersionNotFound, objectID, version, resp.Status)
	}
	var data ObjectData
	if err := json.Unmarshal(resp.Details, &data); err != nil {
		return nil, fmt.Errorf("decode object %s at version %d: %w", objectID, version, err)
	}
	return &data, nil
}

// SharedInitialVersion returns the version at which a shared object was
// created, read from an owner of the form {"Shared":{"initial_shared_version":N}}.
func SharedInitialVersion(owner json.RawMessage) (int64, bool) {
	var o struct {
		Shared *struct {
			InitialSharedVersion json.RawMessage `json:"initial_shared_version"`
		} `json:"Shared"`
	}
	if isNull(owner) || json.Unmarshal(owner, &o) != nil || o.Shared == nil {
		return 0, false
	}
	v, ok := ParseInt(o.Shared.InitialSharedVersion)
	return v, ok && v > 0
}

// GetTransactionBlock fetches a transaction together with its events.
func (c *Client) GetTransactionBlock(ctx context.Context, digest string) (*TransactionBlock, error) {
	var tx TransactionBlock
	opts := map[string]bool{"showEvents": true}
	if err := c.call(ctx, "sui_getTransactionBlock", []any{digest, opts}, &tx); err != nil {
		var rpcErr *provider.RPCError
		if errors.As(err, &rpcErr) && strings.Contains(strings.ToLower(rpcErr.Message), "could not find") {
			return nil, fmt.Errorf("%w: %s", ErrTransactionNotFound, digest)
		}
		return nil, fmt.Errorf("failed to get transaction %s: %w", digest, err)
	}
	if tx.Digest == "" {
		return nil, fmt.Errorf("%w: %s", ErrTransactionNotFound, digest)
	}
	return &tx, nil
}

// ResolveCoinType fetches an envelope object and extracts the coin type from
// its generic parameter.
func (c *Client) ResolveCoinType(ctx context.Context, objectID string) (string, error) {
	resp, err := c.getObject(ctx, objectID)
	if err != nil {
		return "", err
	}

	typeStr := resp.Type
	if resp.Data != nil && resp.Data.Type != "" {
		typeStr = resp.Data.Type
	}
	if typeStr == "" {
		return "", fmt.Errorf("%w: %s has no type", ErrObjectNotFound, objectID)
	}

	coinType, err := ExtractTypeParam(typeStr)
	if err != nil {
		return "", fmt.Errorf("object %s: %w", objectID, err)
	}
	c.log.Debug("Resolved coin type", "object_id", objectID, "coin_type", coinType)
	return coinType, nil
}

// ExtractTypeParam returns the text between the first '<' and the last '>'
// of a Move type string, e.g. "0x1::m::Created<0x2::sui::SUI>" yields
// "0x2::sui::SUI".
func ExtractTypeParam(typeStr string) (string, error) {
	start := strings.Index(typeStr, "<")
	end := strings.LastIndex(typeStr, ">")
	if start < 0 || end <= start+1 {
		return "", ErrNoTypeParam
	}
	return typeStr[start+1 : end], nil
}

// IsModuleType reports whether typeStr belongs to the given Move module.
func IsModuleType(typeStr, module string) bool {
	return strings.Contains(typeStr, "::"+module+"::")
}
