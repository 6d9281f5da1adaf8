package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
	"ztuff-backend/internal/common"
	"ztuff-backend/internal/util"

	"go.uber.org/zap"
)

// RefundRequest 退款请求，Key 相同的请求网关只执行一次
type RefundRequest struct {
	Key              string
	PaymentReference string
	Amount           int64
	Reason           string
}

// RefundResult 网关返回的退款结果
type RefundResult struct {
	Success  bool
	RefundID string
	Error    string
}

// Client 支付网关 HTTP 客户端
type Client struct {
	baseURL    string
	serverKey  string
	httpClient *http.Client
	maxRetries int
}

func NewClient(baseURL, serverKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    baseURL,
		serverKey:  serverKey,
		httpClient: &http.Client{Timeout: timeout},
		maxRetries: 3,
	}
}

type refundPayload struct {
	RefundKey string `json:"refund_key"`
	Amount    int64  `json:"amount"`
	Reason    string `json:"reason,omitempty"`
}

type refundResponse struct {
	StatusCode    string `json:"status_code"`
	StatusMessage string `json:"status_message"`
	RefundKey     string `json:"refund_key"`
	RefundID      string `json:"refund_chargeback_id"`
}

// temporaryError 网关 5xx，可以用同一个 Key 重试
type temporaryError struct {
	status int
}

func (e *temporaryError) Error() string   { return fmt.Sprintf("gateway returned HTTP %d", e.status) }
func (e *temporaryError) Temporary() bool { return true }

// Refund 网关拒绝时返回 Success=false 的结果；网络错误或重试耗尽时返回 error
func (c *Client) Refund(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	body, err := json.Marshal(refundPayload{RefundKey: req.Key, Amount: req.Amount, Reason: req.Reason})
	if err != nil {
		return nil, err
	}
	endpoint := fmt.Sprintf("%s/v2/%s/refund", c.baseURL, url.PathEscape(req.PaymentReference))

	var result *RefundResult
	err = common.WithRetry(ctx, func() error {
		r, err := c.doRefund(ctx, endpoint, body)
		if err != nil {
			return err
		}
		result = r
		return nil
	}, c.maxRetries)
	if err != nil {
		util.Logger.Error("调用退款接口失败",
			zap.String("refund_key", req.Key),
			zap.Error(err))
		return nil, err
	}

	util.Logger.Info("退款接口返回",
		zap.String("refund_key", req.Key),
		zap.Bool("success", result.Success),
		zap.String("refund_id", result.RefundID))
	return result, nil
}

func (c *Client) doRefund(ctx context.Context, endpoint string, body []byte) (*RefundResult, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.SetBasicAuth(c.serverKey, "")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, &temporaryError{status: resp.StatusCode}
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	var parsed refundResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("invalid refund response: %w", err)
	}

	switch parsed.StatusCode {
	case "200", "201":
		return &RefundResult{Success: true, RefundID: refundID(parsed)}, nil
	case "409", "412":
		// 同一个 refund_key 已经退过款，按成功处理
		return &RefundResult{Success: true, RefundID: refundID(parsed)}, nil
	default:
		return &RefundResult{Success: false, Error: fmt.Sprintf("%s: %s", parsed.StatusCode, parsed.StatusMessage)}, nil
	}
}

func refundID(resp refundResponse) string {
	if resp.RefundID != "" {
		return resp.RefundID
	}
	return resp.RefundKey
}
