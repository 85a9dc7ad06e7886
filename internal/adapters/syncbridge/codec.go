package syncbridge

import (
	"encoding/json"

	"github.com/bnema/focuscoin/internal/domain"
	"github.com/tidwall/gjson"
)

// rawBody is the inbound shape of transactionsBody. Records stay raw until
// decodeRecords so one malformed record only costs itself.
type rawBody struct {
	Transactions []json.RawMessage `json:"transactions"`
}

// decodeRecords returns the records that decode and the sync ids (possibly
// empty) of those that do not.
func decodeRecords(raw []json.RawMessage) ([]domain.RemoteTransaction, []string) {
	records := make([]domain.RemoteTransaction, 0, len(raw))
	var rejected []string
	for _, item := range raw {
		var record domain.RemoteTransaction
		if err := json.Unmarshal(item, &record); err != nil {
			rejected = append(rejected, gjson.GetBytes(item, "syncId").String())
			continue
		}
		records = append(records, record)
	}
	return records, rejected
}
