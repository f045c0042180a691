package viewport

import "strconv"

// DiscoverByClass returns one Container per element carrying className, in
// document order. Each container's ID is the element's index among them.
func DiscoverByClass(page Page, className string) []Container {
	if page == nil || className == "" {
		return nil
	}
	elements := page.QueryElementsByClass(className)
	containers := make([]Container, 0, len(elements))
	for i, el := range elements {
		containers = append(containers, Container{
			ID:      ContainerID(strconv.Itoa(i)),
			Element: el,
		})
	}
	return containers
}
