package cache

import (
	"github.com/goccy/go-json"
	"github.com/opensource-finance/pensionrules/internal/domain"
)

func encodeSnapshot(snapshot *domain.MemberSnapshot) ([]byte, error) {
	return json.Marshal(snapshot)
}

func decodeSnapshot(data []byte) (*domain.MemberSnapshot, error) {
	var snapshot domain.MemberSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, err
	}
	return &snapshot, nil
}
