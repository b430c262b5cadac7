package providers

import (
	"context"
	"net/url"

	"github.com/xkilldash9x/specter/api/schemas"
)

// HighActivityTxCount is the transaction count above which a wallet counts as
// highly active.
const HighActivityTxCount = 100

// CryptoProvider looks BTC addresses up on a Blockstream-compatible
// explorer. Other chains have no keyless explorer and are reported Absent.
type CryptoProvider struct {
	base
	baseURL string
}

func NewCryptoProvider(d Deps) *CryptoProvider {
	return &CryptoProvider{base: newBase("crypto", d), baseURL: d.Providers.BlockstreamURL}
}

type chainStats struct {
	FundedTxoSum int64 `json:"funded_txo_sum"`
	SpentTxoSum  int64 `json:"spent_txo_sum"`
	TxCount      int   `json:"tx_count"`
}

type addressDoc struct {
	Address      string     `json:"address"`
	ChainStats   chainStats `json:"chain_stats"`
	MempoolStats chainStats `json:"mempool_stats"`
}

// Lookup returns the wallet's activity summary.
func (p *CryptoProvider) Lookup(ctx context.Context, address, chain string) schemas.Result[schemas.CryptoWallet] {
	if chain != "btc" {
		return absent[schemas.CryptoWallet](p.base, "unsupported chain "+chain)
	}
	var doc addressDoc
	resp := p.fetch.GetJSON(ctx, joinURL(p.baseURL, "address", url.PathEscape(address)), nil, &doc)
	if !resp.OK() {
		return absentFrom[schemas.CryptoWallet](p.base, resp)
	}
	w := schemas.CryptoWallet{
		Address:      address,
		Chain:        chain,
		TxCount:      doc.ChainStats.TxCount + doc.MempoolStats.TxCount,
		ReceivedSats: doc.ChainStats.FundedTxoSum,
		SpentSats:    doc.ChainStats.SpentTxoSum,
	}
	w.HighActivity = w.TxCount > HighActivityTxCount
	p.found()
	return schemas.Found(w)
}
