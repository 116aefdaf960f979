// ABOUTME: Native parameter encoding package
// ABOUTME: Builds and parses the POD blobs used for format negotiation
// Package spa implements the POD ("plain old data") encoding an audio graph
// uses for its stream parameters.
//
// Every pod is an 8-byte header (body size, type id) followed by a body
// padded to 8 bytes. Format parameters are objects: an object type, a
// parameter id and a list of keyed properties, each carrying a pod value.
//
// Blobs are built through Object so that key/value pairing and value types
// are fixed by the API instead of by hand-computed offsets:
//
//	obj := spa.NewObject(spa.ObjectTypeFormat, spa.ParamEnumFormat)
//	obj.ID(spa.FormatMediaType, spa.MediaTypeAudio)
//	obj.ID(spa.FormatMediaSubtype, spa.MediaSubtypeRaw)
//	obj.ID(spa.FormatAudioFormat, spa.AudioFormatF32)
//	blob, err := obj.Encode()
//
// and read back with ParseObject.
package spa
