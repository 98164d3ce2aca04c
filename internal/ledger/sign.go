package ledger

import (
	"github.com/gap-kernel/gap/internal/canonical"
	"github.com/gap-kernel/gap/internal/model"
)

func canonicalHash(record model.LineageRecord) (string, error) {
	return canonical.Hash(record)
}
