// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package checkpoint

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/bureau-foundation/hostsync/lib/codec"
	"github.com/bureau-foundation/hostsync/lib/conductor"
	"github.com/bureau-foundation/hostsync/lib/hashes"
	"github.com/bureau-foundation/hostsync/lib/netutil"
	"github.com/bureau-foundation/hostsync/lib/signing"
)

// StatusNoCheckpoint is the service's answer for a cell it holds no
// records for.
const StatusNoCheckpoint = 498

// DefaultTimeout bounds one checkpoint request.
const DefaultTimeout = 60 * time.Second

// RecordsRequest is the payload signed by the cell's agent. A nil
// Since asks for the chain from genesis.
type RecordsRequest struct {
	Since hashes.ActionHash `cbor:"since,omitempty"`
}

// RecordBatch is the service's response body.
type RecordBatch struct {
	Records []conductor.SignedRecord `cbor:"records"`
}

// RecordsPath returns the request path for cell.
func RecordsPath(cell hashes.CellID) string {
	return "/" + cell.DnaHash.String() + "/" + cell.AgentPubKey.String() + "/get_record_data"
}

// Client talks to the checkpoint service.
type Client struct {
	baseURL    string
	signer     *signing.Signer
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient returns a client for the service at baseURL. A zero
// timeout uses DefaultTimeout.
func NewClient(baseURL string, signer *signing.Signer, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		signer:     signer,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// GetRecordsSince returns the records the service holds for cell
// after since, or from genesis when since is nil. A service with no
// checkpoint for the cell yields an empty result.
func (c *Client) GetRecordsSince(ctx context.Context, cell hashes.CellID, since hashes.ActionHash) ([]conductor.SignedRecord, error) {
	cellName := cell.String()
	signed, err := c.signer.SignPayload(ctx, cell.AgentPubKey, RecordsRequest{Since: since})
	if err != nil {
		return nil, &Error{Kind: KindSerialization, Cell: cellName, Err: err}
	}
	body, err := codec.Marshal(signed)
	if err != nil {
		return nil, &Error{Kind: KindSerialization, Cell: cellName, Err: err}
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+RecordsPath(cell), bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Kind: KindTransport, Cell: cellName, Err: err}
	}
	request.Header.Set("Content-Type", "application/cbor")
	request.Header.Set("Accept-Encoding", acceptEncoding)

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, &Error{Kind: KindTransport, Cell: cellName, Err: err}
	}
	defer response.Body.Close()

	switch {
	case response.StatusCode == StatusNoCheckpoint || response.StatusCode == http.StatusNotFound:
		c.logger.Info("checkpoint service holds no records",
			"cell", cellName,
			"status", response.StatusCode,
		)
		return nil, nil
	case response.StatusCode < 200 || response.StatusCode > 299:
		return nil, &Error{
			Kind:       KindStatus,
			Cell:       cellName,
			StatusCode: response.StatusCode,
			Body:       netutil.ErrorBody(response.Body),
		}
	}

	encoding := response.Header.Get("Content-Encoding")
	reader, release, err := decodingReader(encoding, response.Body)
	if err != nil {
		return nil, &Error{Kind: KindSerialization, Cell: cellName, Err: err}
	}
	defer release()
	data, err := netutil.ReadResponse(reader)
	if err != nil {
		return nil, &Error{Kind: KindSerialization, Cell: cellName, Err: fmt.Errorf("reading %s body: %w", encodingName(encoding), err)}
	}

	var batch RecordBatch
	if err := codec.Unmarshal(data, &batch); err != nil {
		return nil, &Error{Kind: KindSerialization, Cell: cellName, Err: fmt.Errorf("decoding record batch: %w", err)}
	}
	for index, record := range batch.Records {
		if err := record.ActionHash.Validate(); err != nil {
			return nil, &Error{Kind: KindSerialization, Cell: cellName, Err: fmt.Errorf("record %d: %w", index, err)}
		}
	}
	c.logger.Debug("fetched checkpoint records",
		"cell", cellName,
		"records", len(batch.Records),
		"encoding", encodingName(encoding),
	)
	return batch.Records, nil
}

func encodingName(encoding string) string {
	if encoding == EncodingIdentity {
		return "identity"
	}
	return encoding
}
