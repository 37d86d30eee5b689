package genimage

import "fmt"

// styleGuidance is appended to every prompt so all sprites share one look.
const styleGuidance = "The style must be 3D isometric pixel art. The object must be isolated on a plain white background with no shadows. Do not include any explanatory text in the response; output only the final image."

// PhotoPrompt builds the prompt for turning a photo into a sprite. The
// location, when known, steers the model toward local architecture.
func PhotoPrompt(location string) string {
	locationContext := ""
	if location != "" {
		locationContext = fmt.Sprintf("This photo was taken in %s. ", location)
	}
	return fmt.Sprintf("From the provided image, create a 3D isometric pixel art version of the key object or building. %sConsider the local architectural style and cultural elements when creating the pixel art. %s", locationContext, styleGuidance)
}

// EditPrompt builds the prompt for a free-text edit of an existing sprite.
func EditPrompt(instruction, location string) string {
	locationContext := ""
	if location != "" {
		locationContext = fmt.Sprintf("This is located in %s. ", location)
	}
	return fmt.Sprintf("%s. %s%s", instruction, locationContext, styleGuidance)
}
