package ui

// RenderRadarPanel frames the scope and its legend. The border turns red
// while alert is set.
func RenderRadarPanel(width, height int, scope, legend string, alert bool) string {
	style := StylePanelBorder
	if alert {
		style = StylePanelAlarm
	}
	return style.Width(width - 2).Height(height - 2).Render(scope + "\n" + legend)
}
