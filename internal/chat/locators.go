package chat

// Locator is an ordered list of candidate selectors, most reliable first.
// The first candidate that becomes visible wins.
type Locator []string

// Selectors describes every DOM location the automaton touches.
type Selectors struct {
	Input           Locator
	FileInput       Locator
	UploadIndicator Locator
	Send            Locator
	Liveness        Locator

	// Bubbles holds the primary message-bubble query followed by its
	// structural alternatives.
	Bubbles       Locator
	BubbleContent string
	Markdown      string
}

const (
	rootPath = `//*[@id="root"]/div[1]/div[1]/div[2]/div[3]/div[1]`

	inputInitialXPath = "xpath=" + rootPath + "/div[1]/div[2]/div[2]/div[1]/div[1]/div[1]/textarea[1]"
	inputActiveXPath  = "xpath=" + rootPath + "/div[2]/div[1]/div[2]/div[2]/div[2]/div[1]/div[1]/div[1]/textarea[1]"
	messageListXPath  = "xpath=" + rootPath + "/div[2]/div[1]/div[2]/div[1]/div"
	uploadDoneXPath   = "xpath=" + rootPath + "/div[1]/div[2]/div[2]/div[1]/div[2]/div[2]/div[1]/div[1]"
)

// LoginIndicator is visible only for an authenticated user on an empty chat.
const LoginIndicator = inputInitialXPath

func DefaultSelectors() Selectors {
	return Selectors{
		Input: Locator{
			inputActiveXPath,
			inputInitialXPath,
			"xpath=//textarea[@id='chat-input']",
			"textarea#chat-input",
			"textarea[placeholder*='chat']",
			"textarea",
		},
		FileInput: Locator{
			"input[type='file']",
		},
		UploadIndicator: Locator{
			uploadDoneXPath,
		},
		Send: Locator{
			"xpath=" + rootPath + "/div[1]/div[2]/div[2]/div[1]/div[1]/div[2]/div[3]/div[2]/div[1]/div[2]/svg[1]",
			"xpath=" + rootPath + "/div[2]/div[1]/div[2]/div[2]/div[2]/div[1]/div[1]/div[2]/div[3]/div[2]/div[1]/div[1]",
			"xpath=" + rootPath + "/div[1]/div[2]/div[2]/div[1]/div[1]/div[2]/div[3]/div[2]/div[1]/div[1]",
			"div[role='button'][aria-disabled='false']",
			"div.ds-icon-button:not(.ds-icon-button--disabled)",
			"xpath=//div[@role='button' and @aria-disabled='false']",
			".ds-icon-send",
		},
		Liveness: Locator{
			".ds-stop-button, .ds-icon-stop, button:has(.ds-icon-stop)",
		},
		Bubbles: Locator{
			messageListXPath,
			"xpath=//div[contains(@class, 'chat-container')]//div[contains(@class, 'message')]",
			"xpath=//div[contains(@class, 'ds-markdown')]/ancestor::div[1]",
			".ds-markdown.ds-markdown--block",
		},
		BubbleContent: "xpath=./div[1]/div[1]",
		Markdown:      ".ds-markdown.ds-markdown--block",
	}
}
