package domain

import "strings"

// UnknownGroup es el grupo asignado a coins sin entrada en el mapa de
// correlación. Sigue sujeto a todos los límites.
const UnknownGroup = "unknown"

// GroupMap mapea coin → grupo de correlación. Coins del mismo grupo se
// tratan como el mismo factor de riesgo subyacente.
type GroupMap map[string]string

// BuildGroupMap invierte la configuración grupo → coins a coin → grupo.
func BuildGroupMap(groups map[string][]string) GroupMap {
	m := make(GroupMap)
	for group, coins := range groups {
		for _, coin := range coins {
			m[strings.ToUpper(coin)] = group
		}
	}
	return m
}

// GroupFor devuelve el grupo de correlación de una coin, o UnknownGroup
// si no está en el mapa.
func (g GroupMap) GroupFor(coin string) string {
	if group, ok := g[strings.ToUpper(coin)]; ok {
		return group
	}
	return UnknownGroup
}

// Groups devuelve los nombres de grupo conocidos, sin duplicados.
func (g GroupMap) Groups() []string {
	seen := make(map[string]bool)
	var names []string
	for _, group := range g {
		if !seen[group] {
			seen[group] = true
			names = append(names, group)
		}
	}
	return names
}
