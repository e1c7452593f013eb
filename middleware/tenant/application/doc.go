// Package application contém os casos de uso de tenant: resolução de host,
// decisão de redirect canônico e propagação do contexto da requisição.
//
// Depende apenas do pacote domain e não conhece net/http.
package application
