package addrbook

import (
	"bytes"
	"fmt"
	"sort"
	"text/template"
)

const (
	BeginMarker = "// addrsync:begin (generated, do not edit)"
	EndMarker   = "// addrsync:end"
)

type renderContract struct {
	Name    string
	Address string
}

type renderData struct {
	Begin     string
	End       string
	Contracts []renderContract
	Tokens    []Token
	Pairs     []Pair
	Debt      []string
	Coll      []string
	Pools     []string
}

var regionTemplate = template.Must(template.New("region").Parse(`{{.Begin}}
import { getAddress as addrsyncGetAddress } from "ethers";

export const CONTRACT_ADDRESSES = {
{{- range .Contracts}}
  {{.Name}}: "{{.Address}}",
{{- end}}
} as const;

export type TokenSymbol ={{if not .Tokens}} never{{end}}{{range .Tokens}}
  | "{{.Symbol}}"{{end}};

export const TOKENS: ReadonlyArray<{ symbol: TokenSymbol; address: string; isDebtToken: boolean }> = [
{{- range .Tokens}}
  { symbol: "{{.Symbol}}", address: "{{.Address.Hex}}", isDebtToken: {{.IsDebtToken}} },
{{- end}}
];

export const PAIRS: ReadonlyArray<{ name: string; tokenA: TokenSymbol; tokenB: TokenSymbol; address: string }> = [
{{- range .Pairs}}
  { name: "{{.Name}}", tokenA: "{{.TokenA}}", tokenB: "{{.TokenB}}", address: "{{.Address.Hex}}" },
{{- end}}
];

const DEBT_TOKEN_ADDRESSES: ReadonlySet<string> = new Set([
{{- range .Debt}}
  "{{.}}",
{{- end}}
]);

const COLL_TOKEN_ADDRESSES: ReadonlySet<string> = new Set([
{{- range .Coll}}
  "{{.}}",
{{- end}}
]);

const POOL_ADDRESSES: ReadonlySet<string> = new Set([
{{- range .Pools}}
  "{{.}}",
{{- end}}
]);

const toChecksum = (address: string): string | undefined => {
  try {
    return addrsyncGetAddress(address.toLowerCase());
  } catch {
    return undefined;
  }
};

const isMember = (set: ReadonlySet<string>, address: string): boolean => {
  const checksummed = toChecksum(address);
  return checksummed !== undefined && set.has(checksummed);
};

export const isDebtToken = (address: string): boolean => isMember(DEBT_TOKEN_ADDRESSES, address);
export const isCollToken = (address: string): boolean => isMember(COLL_TOKEN_ADDRESSES, address);
export const isToken = (address: string): boolean => isDebtToken(address) || isCollToken(address);
export const isPoolAddress = (address: string): boolean => isMember(POOL_ADDRESSES, address);
{{.End}}
`))

// Render produces the generated region, markers included. Output depends
// only on the book contents.
func Render(b *Book) ([]byte, error) {
	for _, t := range b.Tokens {
		if err := checkSymbol(t.Symbol); err != nil {
			return nil, err
		}
	}
	for _, p := range b.Pairs {
		for _, symbol := range []string{p.Name, p.TokenA, p.TokenB} {
			if err := checkSymbol(symbol); err != nil {
				return nil, fmt.Errorf("pair %s: %w", p.Name, err)
			}
		}
	}
	data := renderData{Begin: BeginMarker, End: EndMarker, Tokens: b.Tokens, Pairs: b.Pairs}
	for name, addr := range b.Contracts {
		data.Contracts = append(data.Contracts, renderContract{Name: name, Address: addr.Hex()})
	}
	sort.Slice(data.Contracts, func(i, j int) bool { return data.Contracts[i].Name < data.Contracts[j].Name })

	for _, t := range b.Tokens {
		if t.IsDebtToken {
			data.Debt = append(data.Debt, t.Address.Hex())
		} else {
			data.Coll = append(data.Coll, t.Address.Hex())
		}
	}
	for _, p := range b.Pairs {
		data.Pools = append(data.Pools, p.Address.Hex())
	}
	sort.Strings(data.Debt)
	sort.Strings(data.Coll)
	sort.Strings(data.Pools)

	var buf bytes.Buffer
	if err := regionTemplate.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("render address book: %w", err)
	}
	return buf.Bytes(), nil
}
