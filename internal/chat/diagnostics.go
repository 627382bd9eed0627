package chat

import "chat-bridge/pkg/jsmap"

// Candidate is one visible input-like element found by the DOM snapshot.
type Candidate struct {
	Tag         string
	ID          string
	Classes     string
	Placeholder string
	AriaLabel   string
	Role        string
	Disabled    bool
}

// candidatesScript lists visible textareas, text inputs and button-like
// elements so a stale Locator can be updated from the logs.
const candidatesScript = `(() => {
	try {
		const out = [];
		const nodes = document.querySelectorAll('textarea, input, button, [role="button"], [contenteditable="true"]');
		for (const el of nodes) {
			const rect = el.getBoundingClientRect();
			const style = window.getComputedStyle(el);
			const visible = rect.width > 0 && rect.height > 0 &&
				style.display !== 'none' && style.visibility !== 'hidden';
			if (!visible) continue;
			out.push({
				tag: el.tagName.toLowerCase(),
				id: el.id || '',
				classes: typeof el.className === 'string' ? el.className.slice(0, 120) : '',
				placeholder: el.getAttribute('placeholder') || '',
				ariaLabel: el.getAttribute('aria-label') || '',
				role: el.getAttribute('role') || '',
				disabled: el.getAttribute('aria-disabled') === 'true' || !!el.disabled,
			});
			if (out.length >= 40) break;
		}
		return out;
	} catch (e) {
		return [];
	}
})()`

func parseCandidates(result any) []Candidate {
	items, ok := result.([]any)
	if !ok {
		return nil
	}

	out := make([]Candidate, 0, len(items))

	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}

		out = append(out, Candidate{
			Tag:         jsmap.String(m, "tag"),
			ID:          jsmap.String(m, "id"),
			Classes:     jsmap.String(m, "classes"),
			Placeholder: jsmap.String(m, "placeholder"),
			AriaLabel:   jsmap.String(m, "ariaLabel"),
			Role:        jsmap.String(m, "role"),
			Disabled:    jsmap.Bool(m, "disabled"),
		})
	}

	return out
}
