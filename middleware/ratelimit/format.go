// utilitário pequeno para formatação rápida/consistente de valores numéricos em headers/logs.
// Evita puxar fmt só para formatação simples e mantém floats sem notação científica
// para valores comuns.

package ratelimit

import "strconv"

func formatInt(v int) string { return strconv.Itoa(v) }

func formatUint(v uint64) string { return strconv.FormatUint(v, 10) }

func formatFloat(v float64) string {
	// sem depender de fmt, e sem notação científica para valores comuns
	return strconv.FormatFloat(v, 'f', -1, 64)
}
